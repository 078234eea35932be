package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/example/granitedb/internal/api"
	"github.com/example/granitedb/internal/catalog"
	"github.com/example/granitedb/internal/exec"
	"github.com/example/granitedb/internal/sql/parser"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	switch cmd {
	case "new":
		runNew(os.Args[2:])
	case "exec":
		runExec(os.Args[2:])
	case "dump":
		runDump(os.Args[2:])
	case "meta":
		runMeta(os.Args[2:])
	case "bind":
		runBind(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("GraniteDB control utility")
	fmt.Println("Usage:")
	fmt.Println("  granitectl new <dbfile>")
	fmt.Println("  granitectl exec -q <SQL> <dbfile>")
	fmt.Println("  granitectl dump <dbfile>")
	fmt.Println("  granitectl meta [--json] <dbfile>")
	fmt.Println("  granitectl bind -q <SQL> <dbfile>")
}

func runNew(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: granitectl new <dbfile>")
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)
	if err := api.Create(path); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created database %s\n", path)
}

func runExec(args []string) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	query := fs.String("q", "", "SQL query to execute")
	fs.Usage = func() {
		fmt.Println("Usage: granitectl exec -q <SQL> <dbfile>")
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	if *query == "" {
		fmt.Fprintln(os.Stderr, "error: -q is required")
		os.Exit(1)
	}
	db, err := api.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	result, err := db.Execute(*query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	renderResult(result)
}

func runDump(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: granitectl dump <dbfile>")
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	db, err := api.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	tables, err := db.Tables()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(tables) == 0 {
		fmt.Println("No tables defined")
		return
	}
	for _, table := range tables {
		fmt.Printf("Table %s (%d row(s))\n", table.Name, table.RowCount)
		for _, col := range table.Columns {
			fmt.Printf("  - %s %s", col.Name, describeType(col))
			if col.NotNull {
				fmt.Print(" NOT NULL")
			}
			if col.PrimaryKey {
				fmt.Print(" PRIMARY KEY")
			}
			fmt.Println()
		}
		fmt.Println()
	}
}

func describeType(col catalog.Column) string {
	switch col.Type {
	case catalog.ColumnTypeInt:
		return "INT"
	case catalog.ColumnTypeBigInt:
		return "BIGINT"
	case catalog.ColumnTypeVarChar:
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	case catalog.ColumnTypeBoolean:
		return "BOOLEAN"
	case catalog.ColumnTypeDate:
		return "DATE"
	case catalog.ColumnTypeTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

func renderResult(res *exec.Result) {
	if len(res.Columns) == 0 {
		fmt.Println(res.Message)
		return
	}
	widths := make([]int, len(res.Columns))
	for i, col := range res.Columns {
		widths[i] = len(col)
	}
	for _, row := range res.Rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	printRow(res.Columns, widths)
	separator := make([]string, len(widths))
	for i, w := range widths {
		separator[i] = strings.Repeat("-", w)
	}
	printRow(separator, widths)
	for _, row := range res.Rows {
		printRow(row, widths)
	}
	fmt.Printf("(%d row(s))\n", len(res.Rows))
}

func printRow(values []string, widths []int) {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = fmt.Sprintf("%-*s", widths[i], v)
	}
	fmt.Println(strings.Join(cells, " | "))
}

// errMetaUsage is returned by parseMetaArgs when the argument list itself is
// malformed (missing database path), as opposed to an unknown flag.
var errMetaUsage = errors.New("granitectl: usage: granitectl meta [--json] <dbfile>")

// parseMetaArgs accepts a --json/-json flag in any position, before or after
// exactly one positional database path argument.
func parseMetaArgs(args []string) (jsonOut bool, dbPath string, err error) {
	for _, arg := range args {
		switch arg {
		case "--json", "-json":
			jsonOut = true
		default:
			if strings.HasPrefix(arg, "-") {
				return false, "", fmt.Errorf("granitectl: unknown option %s", arg)
			}
			if dbPath != "" {
				return false, "", fmt.Errorf("granitectl: unexpected extra argument %s", arg)
			}
			dbPath = arg
		}
	}
	if dbPath == "" {
		return false, "", errMetaUsage
	}
	return jsonOut, dbPath, nil
}

func runMeta(args []string) {
	jsonOut, dbPath, err := parseMetaArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errMetaUsage) {
			fmt.Println("Usage: granitectl meta [--json] <dbfile>")
		}
		os.Exit(1)
	}

	meta, err := api.LoadDatabaseMeta(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Database %s\n", meta.Database)
	for _, table := range meta.Tables {
		fmt.Printf("Table %s (%d row(s))\n", table.Name, table.RowCount)
		for _, col := range table.Columns {
			flags := ""
			if col.NotNull {
				flags += " NOT NULL"
			}
			if col.IsPrimaryKey {
				flags += " PRIMARY KEY"
			}
			fmt.Printf("  - %s %s%s\n", col.Name, col.Type, flags)
		}
		for _, idx := range table.Indexes {
			unique := ""
			if idx.Unique {
				unique = "UNIQUE "
			}
			fmt.Printf("  %sINDEX %s (%s)\n", unique, idx.Name, strings.Join(idx.Columns, ", "))
		}
		for _, fk := range table.ForeignKeys {
			fmt.Printf("  FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s ON UPDATE %s\n",
				strings.Join(fk.FromColumns, ", "), fk.ToTable, strings.Join(fk.ToColumns, ", "), fk.OnDelete, fk.OnUpdate)
		}
		fmt.Println()
	}
}

func runBind(args []string) {
	fs := flag.NewFlagSet("bind", flag.ExitOnError)
	query := fs.String("q", "", "SQL statement to bind")
	fs.Usage = func() {
		fmt.Println("Usage: granitectl bind -q <SQL> <dbfile>")
	}
	fs.Parse(args)
	if fs.NArg() != 1 || *query == "" {
		fs.Usage()
		os.Exit(1)
	}

	db, err := api.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	stmt, err := db.Bind(*query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bind error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("statement bound successfully")
	if sel, ok := stmt.(*parser.SelectStmt); ok {
		for _, item := range sel.Items {
			exprItem, ok := item.(*parser.SelectExprItem)
			if !ok {
				continue
			}
			ann := exprItem.Expr.Annotation()
			fmt.Printf("  %s -> %s\n", displayColumnName(exprItem), ann.ReturnType)
		}
	}
}

func displayColumnName(item *parser.SelectExprItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if ref, ok := item.Expr.(*parser.ColumnRef); ok {
		return ref.Name
	}
	return item.Expr.Annotation().DisplayName
}
