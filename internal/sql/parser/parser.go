package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/granitedb/internal/sql/lexer"
)

// Parse parses a single SQL statement into an AST.
func Parse(input string) (Statement, error) {
	p := &Parser{lex: lexer.New(input)}
	p.nextToken()
	p.nextToken()
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.curToken.Type == lexer.Semicolon {
		p.nextToken()
	}
	if p.curToken.Type != lexer.EOF {
		return nil, fmt.Errorf("parser: unexpected token %s", p.curToken.Literal)
	}
	return stmt, nil
}

// Parser implements a hand-rolled recursive descent parser over the
// lexer's token stream, using precedence climbing for expressions.
type Parser struct {
	lex       *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lex.Next()
}

func (p *Parser) cur() string  { return strings.ToUpper(p.curToken.Literal) }
func (p *Parser) peek() string { return strings.ToUpper(p.peekToken.Literal) }

func (p *Parser) expectKeyword(keyword string) error {
	if p.cur() != keyword {
		return fmt.Errorf("parser: expected %s but found %s", keyword, p.curToken.Literal)
	}
	return nil
}

func (p *Parser) consumeKeyword(keyword string) error {
	if err := p.expectKeyword(keyword); err != nil {
		return err
	}
	p.nextToken()
	return nil
}

func (p *Parser) consumeIfKeyword(keyword string) bool {
	if p.cur() == keyword {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) parseIdent() (string, error) {
	if p.curToken.Type != lexer.Ident {
		return "", fmt.Errorf("parser: expected identifier but found %s", p.curToken.Literal)
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, nil
}

func (p *Parser) expect(tt lexer.TokenType, what string) error {
	if p.curToken.Type != tt {
		return fmt.Errorf("parser: expected %s but found %s", what, p.curToken.Literal)
	}
	p.nextToken()
	return nil
}

func parseInt(value string) int {
	n, _ := strconv.Atoi(value)
	return n
}

// Precedence levels for expression parsing, lowest to tightest binding.
const (
	lowestPrecedence         = 0
	orPrecedence             = 1
	andPrecedence            = 2
	notPrecedence            = 3
	comparisonPrecedence     = 4
	additivePrecedence       = 5
	multiplicativePrecedence = 6
	unaryPrecedence          = 7
)

func (p *Parser) parseStatement() (Statement, error) {
	switch p.cur() {
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "DEALLOCATE":
		return p.parseDeallocate()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelectStmt()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "COPY":
		return p.parseCopy()
	case "ANALYZE":
		return p.parseAnalyze()
	case "PREPARE":
		return p.parsePrepare()
	case "EXECUTE":
		return p.parseExecute()
	case "BEGIN":
		p.nextToken()
		p.consumeIfKeyword("TRANSACTION")
		return &TransactionStmt{Kind: TransactionBegin}, nil
	case "COMMIT":
		p.nextToken()
		p.consumeIfKeyword("TRANSACTION")
		return &TransactionStmt{Kind: TransactionCommit}, nil
	case "ROLLBACK":
		p.nextToken()
		p.consumeIfKeyword("TRANSACTION")
		return &TransactionStmt{Kind: TransactionRollback}, nil
	default:
		return nil, fmt.Errorf("parser: unexpected token %s", p.curToken.Literal)
	}
}

// --- CREATE ---

func (p *Parser) parseCreate() (Statement, error) {
	if err := p.consumeKeyword("CREATE"); err != nil {
		return nil, err
	}
	switch p.cur() {
	case "DATABASE":
		p.nextToken()
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &CreateDatabaseStmt{Name: name}, nil
	case "TABLE":
		return p.parseCreateTable()
	case "UNIQUE":
		p.nextToken()
		if err := p.consumeKeyword("INDEX"); err != nil {
			return nil, err
		}
		return p.parseCreateIndex(true)
	case "INDEX":
		p.nextToken()
		return p.parseCreateIndex(false)
	case "TRIGGER":
		return p.parseCreateTrigger()
	case "VIEW":
		return p.parseCreateView()
	case "SCHEMA":
		p.nextToken()
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &CreateSchemaStmt{Name: name}, nil
	case "FUNCTION":
		return p.parseCreateFunction()
	default:
		return nil, fmt.Errorf("parser: unsupported CREATE target %s", p.curToken.Literal)
	}
}

func (p *Parser) parseCreateTable() (Statement, error) {
	if err := p.consumeKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	var primaryKey string
	var fks []ForeignKeyDef
	for {
		switch p.cur() {
		case "PRIMARY":
			if primaryKey != "" {
				return nil, fmt.Errorf("parser: primary key already defined")
			}
			p.nextToken()
			if err := p.consumeKeyword("KEY"); err != nil {
				return nil, err
			}
			if err := p.expect(lexer.LParen, "("); err != nil {
				return nil, err
			}
			primaryKey, err = p.parseIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expect(lexer.RParen, ")"); err != nil {
				return nil, err
			}
		case "FOREIGN":
			fk, err := p.parseForeignKey("")
			if err != nil {
				return nil, err
			}
			fks = append(fks, fk)
		case "CONSTRAINT":
			p.nextToken()
			cname, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			if p.cur() != "FOREIGN" {
				return nil, fmt.Errorf("parser: only named FOREIGN KEY constraints are supported")
			}
			fk, err := p.parseForeignKey(cname)
			if err != nil {
				return nil, err
			}
			fks = append(fks, fk)
		default:
			col, isPrimary, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			if isPrimary {
				if primaryKey != "" {
					return nil, fmt.Errorf("parser: primary key already defined")
				}
				primaryKey = col.Name
			}
			if col.References != nil {
				fks = append(fks, *col.References)
			}
		}
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	if err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &CreateTableStmt{Name: name, Columns: cols, PrimaryKey: primaryKey, ForeignKeys: fks}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, bool, error) {
	name, err := p.parseIdent()
	if err != nil {
		return ColumnDef{}, false, err
	}
	dt, length, precision, scale, err := p.parseType()
	if err != nil {
		return ColumnDef{}, false, err
	}
	col := ColumnDef{Name: name, Type: dt, Length: length, Precision: precision, Scale: scale}
	isPrimary := false
	for {
		switch p.cur() {
		case "NOT":
			p.nextToken()
			if err := p.consumeKeyword("NULL"); err != nil {
				return ColumnDef{}, false, err
			}
			col.NotNull = true
		case "DEFAULT":
			p.nextToken()
			def, err := p.parseExpression(lowestPrecedence)
			if err != nil {
				return ColumnDef{}, false, err
			}
			col.Default = def
		case "CHECK":
			p.nextToken()
			if err := p.expect(lexer.LParen, "("); err != nil {
				return ColumnDef{}, false, err
			}
			chk, err := p.parseExpression(lowestPrecedence)
			if err != nil {
				return ColumnDef{}, false, err
			}
			if err := p.expect(lexer.RParen, ")"); err != nil {
				return ColumnDef{}, false, err
			}
			col.Check = chk
		case "PRIMARY":
			p.nextToken()
			if err := p.consumeKeyword("KEY"); err != nil {
				return ColumnDef{}, false, err
			}
			isPrimary = true
		case "UNIQUE":
			p.nextToken()
		case "REFERENCES":
			fk, err := p.parseInlineReferences(col.Name)
			if err != nil {
				return ColumnDef{}, false, err
			}
			col.References = &fk
		default:
			return col, isPrimary, nil
		}
	}
}

func (p *Parser) parseType() (DataType, int, int, int, error) {
	switch p.cur() {
	case "INT":
		p.nextToken()
		return DataTypeInt, 0, 0, 0, nil
	case "BIGINT":
		p.nextToken()
		return DataTypeBigInt, 0, 0, 0, nil
	case "BOOLEAN":
		p.nextToken()
		return DataTypeBoolean, 0, 0, 0, nil
	case "DATE":
		p.nextToken()
		return DataTypeDate, 0, 0, 0, nil
	case "TIMESTAMP":
		p.nextToken()
		return DataTypeTimestamp, 0, 0, 0, nil
	case "VARCHAR":
		p.nextToken()
		if err := p.expect(lexer.LParen, "("); err != nil {
			return 0, 0, 0, 0, err
		}
		if p.curToken.Type != lexer.Number {
			return 0, 0, 0, 0, fmt.Errorf("parser: expected length for VARCHAR")
		}
		length := parseInt(p.curToken.Literal)
		p.nextToken()
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return 0, 0, 0, 0, err
		}
		return DataTypeVarChar, length, 0, 0, nil
	case "DECIMAL":
		p.nextToken()
		if err := p.expect(lexer.LParen, "("); err != nil {
			return 0, 0, 0, 0, err
		}
		if p.curToken.Type != lexer.Number {
			return 0, 0, 0, 0, fmt.Errorf("parser: expected precision for DECIMAL")
		}
		precision := parseInt(p.curToken.Literal)
		p.nextToken()
		scale := 0
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			if p.curToken.Type != lexer.Number {
				return 0, 0, 0, 0, fmt.Errorf("parser: expected scale for DECIMAL")
			}
			scale = parseInt(p.curToken.Literal)
			p.nextToken()
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return 0, 0, 0, 0, err
		}
		return DataTypeDecimal, 0, precision, scale, nil
	default:
		return 0, 0, 0, 0, fmt.Errorf("parser: unknown type %s", p.curToken.Literal)
	}
}

func (p *Parser) parseFKAction() (ForeignKeyAction, error) {
	switch p.cur() {
	case "CASCADE":
		p.nextToken()
		return FKActionCascade, nil
	case "RESTRICT":
		p.nextToken()
		return FKActionRestrict, nil
	case "NO":
		p.nextToken()
		if err := p.consumeKeyword("ACTION"); err != nil {
			return 0, err
		}
		return FKActionNoAction, nil
	default:
		return 0, fmt.Errorf("parser: unknown referential action %s", p.curToken.Literal)
	}
}

func (p *Parser) parseForeignKey(name string) (ForeignKeyDef, error) {
	if err := p.consumeKeyword("FOREIGN"); err != nil {
		return ForeignKeyDef{}, err
	}
	if err := p.consumeKeyword("KEY"); err != nil {
		return ForeignKeyDef{}, err
	}
	if err := p.expect(lexer.LParen, "("); err != nil {
		return ForeignKeyDef{}, err
	}
	cols, err := p.parseIdentifierListOpen()
	if err != nil {
		return ForeignKeyDef{}, err
	}
	if err := p.consumeKeyword("REFERENCES"); err != nil {
		return ForeignKeyDef{}, err
	}
	refTable, err := p.parseIdent()
	if err != nil {
		return ForeignKeyDef{}, err
	}
	if err := p.expect(lexer.LParen, "("); err != nil {
		return ForeignKeyDef{}, err
	}
	refCols, err := p.parseIdentifierListOpen()
	if err != nil {
		return ForeignKeyDef{}, err
	}
	fk := ForeignKeyDef{Name: name, Columns: cols, RefTable: refTable, RefColumns: refCols}
	if err := p.parseFKActions(&fk); err != nil {
		return ForeignKeyDef{}, err
	}
	return fk, nil
}

// parseFKActions consumes zero or more trailing `ON DELETE ...` / `ON UPDATE
// ...` clauses, shared by table-level FOREIGN KEY and inline column-level
// REFERENCES constraints.
func (p *Parser) parseFKActions(fk *ForeignKeyDef) error {
	for p.cur() == "ON" {
		p.nextToken()
		switch p.cur() {
		case "DELETE":
			p.nextToken()
			action, err := p.parseFKAction()
			if err != nil {
				return err
			}
			fk.OnDelete = action
		case "UPDATE":
			p.nextToken()
			action, err := p.parseFKAction()
			if err != nil {
				return err
			}
			fk.OnUpdate = action
		default:
			return fmt.Errorf("parser: expected DELETE or UPDATE after ON")
		}
	}
	return nil
}

// parseInlineReferences parses a column-level `REFERENCES table(col)` clause,
// with the REFERENCES keyword still unconsumed. The resulting ForeignKeyDef
// has a single child column: the owning column's own name.
func (p *Parser) parseInlineReferences(columnName string) (ForeignKeyDef, error) {
	if err := p.consumeKeyword("REFERENCES"); err != nil {
		return ForeignKeyDef{}, err
	}
	refTable, err := p.parseIdent()
	if err != nil {
		return ForeignKeyDef{}, err
	}
	refCols := []string{columnName}
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		refCols, err = p.parseIdentifierListOpen()
		if err != nil {
			return ForeignKeyDef{}, err
		}
	}
	fk := ForeignKeyDef{Columns: []string{columnName}, RefTable: refTable, RefColumns: refCols}
	if err := p.parseFKActions(&fk); err != nil {
		return ForeignKeyDef{}, err
	}
	return fk, nil
}

// parseIdentifierListOpen parses a comma-separated identifier list, with
// the opening `(` already consumed, and consumes the closing `)`.
func (p *Parser) parseIdentifierListOpen() ([]string, error) {
	var values []string
	for {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		values = append(values, name)
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	if err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return values, nil
}

// parseExpressionListOpen parses a comma-separated expression list, with
// the opening `(` already consumed, and consumes the closing `)`.
func (p *Parser) parseExpressionListOpen() ([]Expression, error) {
	var values []Expression
	for {
		e, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		values = append(values, e)
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	if err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *Parser) parseCreateIndex(unique bool) (Statement, error) {
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	var attrs []IndexAttribute
	for {
		if p.curToken.Type == lexer.Ident && (p.peekToken.Type == lexer.Comma || p.peekToken.Type == lexer.RParen) {
			col, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, IndexAttribute{Column: col})
		} else {
			e, err := p.parseExpression(lowestPrecedence)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, IndexAttribute{Expr: e})
		}
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	if err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &CreateIndexStmt{Name: name, Table: table, Attributes: attrs, Unique: unique}, nil
}

func (p *Parser) parseCreateTrigger() (Statement, error) {
	if err := p.consumeKeyword("TRIGGER"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var timing TriggerTiming
	switch p.cur() {
	case "BEFORE":
		timing = TriggerBefore
	case "AFTER":
		timing = TriggerAfter
	default:
		return nil, fmt.Errorf("parser: expected BEFORE or AFTER but found %s", p.curToken.Literal)
	}
	p.nextToken()
	event, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var when Expression
	if p.consumeIfKeyword("WHEN") {
		if err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		when, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	if p.consumeIfKeyword("EXECUTE") {
		if err := p.consumeKeyword("FUNCTION"); err != nil {
			return nil, err
		}
		if _, err := p.parseIdent(); err != nil {
			return nil, err
		}
		if err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	return &CreateTriggerStmt{Name: name, Timing: timing, Event: strings.ToUpper(event), Table: table, When: when}, nil
}

func (p *Parser) parseCreateView() (Statement, error) {
	if err := p.consumeKeyword("VIEW"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("AS"); err != nil {
		return nil, err
	}
	query, err := p.parseSelectStmt()
	if err != nil {
		return nil, err
	}
	return &CreateViewStmt{Name: name, Query: query}, nil
}

func (p *Parser) parseCreateFunction() (Statement, error) {
	if err := p.consumeKeyword("FUNCTION"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
	}
	if p.consumeIfKeyword("RETURNS") {
		if _, _, _, _, err := p.parseType(); err != nil {
			return nil, err
		}
	}
	if err := p.consumeKeyword("AS"); err != nil {
		return nil, err
	}
	if p.curToken.Type != lexer.String {
		return nil, fmt.Errorf("parser: expected function body as a string literal")
	}
	body := p.curToken.Literal
	p.nextToken()
	if p.consumeIfKeyword("LANGUAGE") {
		if _, err := p.parseIdent(); err != nil {
			return nil, err
		}
	}
	return &CreateFunctionStmt{Name: name, Body: body}, nil
}

// --- DROP ---

func (p *Parser) parseDrop() (Statement, error) {
	if err := p.consumeKeyword("DROP"); err != nil {
		return nil, err
	}
	switch p.cur() {
	case "DATABASE":
		p.nextToken()
		name, err := p.parseIdent()
		return &DropStmt{Kind: DropDatabase, Name: name}, err
	case "TABLE":
		p.nextToken()
		name, err := p.parseIdent()
		return &DropStmt{Kind: DropTable, Name: name}, err
	case "INDEX":
		p.nextToken()
		name, err := p.parseIdent()
		return &DropStmt{Kind: DropIndex, Name: name}, err
	case "TRIGGER":
		p.nextToken()
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if p.consumeIfKeyword("ON") {
			if _, err := p.parseIdent(); err != nil {
				return nil, err
			}
		}
		return &DropStmt{Kind: DropTrigger, Name: name}, nil
	case "VIEW":
		p.nextToken()
		name, err := p.parseIdent()
		return &DropStmt{Kind: DropView, Name: name}, err
	case "SCHEMA":
		p.nextToken()
		name, err := p.parseIdent()
		return &DropStmt{Kind: DropSchema, Name: name}, err
	default:
		return nil, fmt.Errorf("parser: unsupported DROP target %s", p.curToken.Literal)
	}
}

func (p *Parser) parseDeallocate() (Statement, error) {
	if err := p.consumeKeyword("DEALLOCATE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &DropStmt{Kind: DropPreparedStatement, Name: name}, nil
}

// --- INSERT / UPDATE / DELETE / COPY / ANALYZE ---

func (p *Parser) parseInsert() (Statement, error) {
	if err := p.consumeKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var columns []string
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		columns, err = p.parseIdentifierListOpen()
		if err != nil {
			return nil, err
		}
	}
	if p.cur() == "SELECT" {
		source, err := p.parseSelectStmt()
		if err != nil {
			return nil, err
		}
		return &InsertStmt{Table: table, Columns: columns, Source: source}, nil
	}
	if err := p.consumeKeyword("VALUES"); err != nil {
		return nil, err
	}
	var rows [][]Expression
	for {
		if err := p.expect(lexer.LParen, "("); err != nil {
			return nil, err
		}
		row, err := p.parseExpressionListOpen()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	return &InsertStmt{Table: table, Columns: columns, Values: rows}, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	if err := p.consumeKeyword("UPDATE"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("SET"); err != nil {
		return nil, err
	}
	var assignments []UpdateAssignment
	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.Equal, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, UpdateAssignment{Column: col, Expr: val})
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	var where Expression
	if p.consumeIfKeyword("WHERE") {
		where, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	return &UpdateStmt{Table: table, Assignments: assignments, Where: where}, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	if err := p.consumeKeyword("DELETE"); err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var where Expression
	if p.consumeIfKeyword("WHERE") {
		where, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	return &DeleteStmt{Table: table, Where: where}, nil
}

func (p *Parser) parseCopy() (Statement, error) {
	if err := p.consumeKeyword("COPY"); err != nil {
		return nil, err
	}
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		query, err := p.parseSelectStmt()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		dir, path, err := p.parseCopyDirectionAndPath()
		if err != nil {
			return nil, err
		}
		return &CopyStmt{Direction: dir, Query: query, Path: path}, nil
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var columns []string
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		columns, err = p.parseIdentifierListOpen()
		if err != nil {
			return nil, err
		}
	}
	dir, path, err := p.parseCopyDirectionAndPath()
	if err != nil {
		return nil, err
	}
	return &CopyStmt{Direction: dir, Table: table, Columns: columns, Path: path}, nil
}

func (p *Parser) parseCopyDirectionAndPath() (CopyDirection, string, error) {
	switch p.cur() {
	case "TO":
		p.nextToken()
		if p.consumeIfKeyword("STDOUT") {
			return CopyTo, "", nil
		}
		if p.curToken.Type != lexer.String {
			return 0, "", fmt.Errorf("parser: expected destination path after TO")
		}
		path := p.curToken.Literal
		p.nextToken()
		return CopyTo, path, nil
	case "FROM":
		p.nextToken()
		if p.consumeIfKeyword("STDIN") {
			return CopyFrom, "", nil
		}
		if p.curToken.Type != lexer.String {
			return 0, "", fmt.Errorf("parser: expected source path after FROM")
		}
		path := p.curToken.Literal
		p.nextToken()
		return CopyFrom, path, nil
	default:
		return 0, "", fmt.Errorf("parser: expected TO or FROM in COPY")
	}
}

func (p *Parser) parseAnalyze() (Statement, error) {
	if err := p.consumeKeyword("ANALYZE"); err != nil {
		return nil, err
	}
	table, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &AnalyzeStmt{Table: table}, nil
}

func (p *Parser) parsePrepare() (Statement, error) {
	if err := p.consumeKeyword("PREPARE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("AS"); err != nil {
		return nil, err
	}
	inner, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &PrepareStmt{Name: name, Query: inner}, nil
}

func (p *Parser) parseExecute() (Statement, error) {
	if err := p.consumeKeyword("EXECUTE"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	var args []Expression
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		if p.curToken.Type != lexer.RParen {
			args, err = p.parseExpressionListOpen()
			if err != nil {
				return nil, err
			}
		} else {
			p.nextToken()
		}
	}
	return &ExecuteStmt{Name: name, Args: args}, nil
}

// --- SELECT ---

func (p *Parser) parseSelectStmt() (*SelectStmt, error) {
	if err := p.consumeKeyword("SELECT"); err != nil {
		return nil, err
	}
	p.consumeIfKeyword("DISTINCT")

	items, err := p.parseSelectItemList()
	if err != nil {
		return nil, err
	}

	stmt := &SelectStmt{Items: items}

	if p.consumeIfKeyword("FROM") {
		stmt.From, err = p.parseTableExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.consumeIfKeyword("WHERE") {
		stmt.Where, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	if p.cur() == "GROUP" {
		p.nextToken()
		if err := p.consumeKeyword("BY"); err != nil {
			return nil, err
		}
		stmt.GroupBy, err = p.parseExpressionCommaList()
		if err != nil {
			return nil, err
		}
	}
	if p.consumeIfKeyword("HAVING") {
		stmt.Having, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	if p.cur() == "ORDER" {
		p.nextToken()
		if err := p.consumeKeyword("BY"); err != nil {
			return nil, err
		}
		stmt.OrderBy, err = p.parseOrderByList()
		if err != nil {
			return nil, err
		}
	}
	if p.consumeIfKeyword("LIMIT") {
		if p.curToken.Type != lexer.Number {
			return nil, fmt.Errorf("parser: expected LIMIT value")
		}
		limit := parseInt(p.curToken.Literal)
		p.nextToken()
		offset := 0
		if p.consumeIfKeyword("OFFSET") {
			if p.curToken.Type != lexer.Number {
				return nil, fmt.Errorf("parser: expected OFFSET value")
			}
			offset = parseInt(p.curToken.Literal)
			p.nextToken()
		}
		stmt.Limit = &LimitClause{Limit: limit, Offset: offset}
	}
	return stmt, nil
}

func (p *Parser) parseSelectItemList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		if p.curToken.Type == lexer.Star {
			p.nextToken()
			items = append(items, &SelectStarItem{})
		} else {
			e, err := p.parseExpression(lowestPrecedence)
			if err != nil {
				return nil, err
			}
			alias := ""
			if p.consumeIfKeyword("AS") {
				alias, err = p.parseIdent()
				if err != nil {
					return nil, err
				}
			}
			items = append(items, &SelectExprItem{Expr: e, Alias: alias})
		}
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseExpressionCommaList() ([]Expression, error) {
	var list []Expression
	for {
		e, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	return list, nil
}

func (p *Parser) parseOrderByList() ([]OrderByTerm, error) {
	var terms []OrderByTerm
	for {
		e, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		desc := false
		switch p.cur() {
		case "ASC":
			p.nextToken()
		case "DESC":
			desc = true
			p.nextToken()
		}
		terms = append(terms, OrderByTerm{Expr: e, Desc: desc})
		if p.curToken.Type == lexer.Comma {
			p.nextToken()
			continue
		}
		break
	}
	return terms, nil
}

// tableClauseTerminators are the keywords that end a table reference's
// implicit-alias slot, so `FROM orders o JOIN ...` parses the bare `o` as
// an alias rather than the next clause.
var tableClauseTerminators = map[string]bool{
	"JOIN": true, "INNER": true, "LEFT": true, "ON": true,
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true,
	"LIMIT": true, "AS": true,
}

func (p *Parser) parseTableExpr() (TableExpr, error) {
	first, err := p.parseTableChain()
	if err != nil {
		return nil, err
	}
	if p.curToken.Type != lexer.Comma {
		return first, nil
	}
	tables := []TableExpr{first}
	for p.curToken.Type == lexer.Comma {
		p.nextToken()
		next, err := p.parseTableChain()
		if err != nil {
			return nil, err
		}
		tables = append(tables, next)
	}
	return &TableList{Tables: tables}, nil
}

func (p *Parser) parseTableChain() (TableExpr, error) {
	left, err := p.parseTableFactor()
	if err != nil {
		return nil, err
	}
	for {
		var joinType JoinType
		switch p.cur() {
		case "JOIN":
			p.nextToken()
			joinType = JoinInner
		case "INNER":
			p.nextToken()
			if err := p.consumeKeyword("JOIN"); err != nil {
				return nil, err
			}
			joinType = JoinInner
		case "LEFT":
			p.nextToken()
			p.consumeIfKeyword("OUTER")
			if err := p.consumeKeyword("JOIN"); err != nil {
				return nil, err
			}
			joinType = JoinLeft
		default:
			return left, nil
		}
		right, err := p.parseTableFactor()
		if err != nil {
			return nil, err
		}
		if err := p.consumeKeyword("ON"); err != nil {
			return nil, err
		}
		on, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		left = &JoinExpr{Left: left, Right: right, Type: joinType, On: on}
	}
}

func (p *Parser) parseTableFactor() (TableExpr, error) {
	if p.curToken.Type == lexer.LParen {
		p.nextToken()
		if p.cur() == "SELECT" {
			query, err := p.parseSelectStmt()
			if err != nil {
				return nil, err
			}
			if err := p.expect(lexer.RParen, ")"); err != nil {
				return nil, err
			}
			alias := ""
			if p.consumeIfKeyword("AS") {
				var err error
				alias, err = p.parseIdent()
				if err != nil {
					return nil, err
				}
			} else if p.curToken.Type == lexer.Ident && !tableClauseTerminators[p.cur()] {
				var err error
				alias, err = p.parseIdent()
				if err != nil {
					return nil, err
				}
			}
			return &SubqueryTableExpr{Query: query, Alias: alias}, nil
		}
		inner, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.consumeIfKeyword("AS") {
		alias, err = p.parseIdent()
		if err != nil {
			return nil, err
		}
	} else if p.curToken.Type == lexer.Ident && !tableClauseTerminators[p.cur()] {
		alias, err = p.parseIdent()
		if err != nil {
			return nil, err
		}
	}
	return &TableName{Name: name, Alias: alias}, nil
}

// --- Expressions ---

func isComparisonToken(tt lexer.TokenType) bool {
	switch tt {
	case lexer.Equal, lexer.NotEqual, lexer.Less, lexer.LessEqual, lexer.Greater, lexer.GreaterEqual:
		return true
	default:
		return false
	}
}

func binaryOpForToken(tt lexer.TokenType) (BinaryOp, bool) {
	switch tt {
	case lexer.Equal:
		return OpEqual, true
	case lexer.NotEqual:
		return OpNotEqual, true
	case lexer.Less:
		return OpLess, true
	case lexer.LessEqual:
		return OpLessEqual, true
	case lexer.Greater:
		return OpGreater, true
	case lexer.GreaterEqual:
		return OpGreaterEqual, true
	case lexer.Plus:
		return OpAdd, true
	case lexer.Minus:
		return OpSubtract, true
	case lexer.Star:
		return OpMultiply, true
	case lexer.Slash:
		return OpDivide, true
	case lexer.Percent:
		return OpModulo, true
	default:
		return 0, false
	}
}

func (p *Parser) curPrecedence() int {
	switch {
	case isComparisonToken(p.curToken.Type):
		return comparisonPrecedence
	case p.curToken.Type == lexer.Plus || p.curToken.Type == lexer.Minus:
		return additivePrecedence
	case p.curToken.Type == lexer.Star || p.curToken.Type == lexer.Slash || p.curToken.Type == lexer.Percent:
		return multiplicativePrecedence
	case p.cur() == "AND":
		return andPrecedence
	case p.cur() == "OR":
		return orPrecedence
	case p.cur() == "IS":
		return comparisonPrecedence
	default:
		return lowestPrecedence
	}
}

func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		if p.cur() == "IS" {
			if precedence >= comparisonPrecedence {
				break
			}
			left, err = p.parseIsNull(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		curPrec := p.curPrecedence()
		if precedence >= curPrec {
			break
		}
		switch {
		case isComparisonToken(p.curToken.Type), p.curToken.Type == lexer.Plus, p.curToken.Type == lexer.Minus,
			p.curToken.Type == lexer.Star, p.curToken.Type == lexer.Slash, p.curToken.Type == lexer.Percent:
			left, err = p.parseBinary(left, curPrec)
		case p.cur() == "AND":
			p.nextToken()
			right, rerr := p.parseExpression(andPrecedence)
			if rerr != nil {
				return nil, rerr
			}
			left = &BinaryExpr{Left: left, Right: right, Op: OpAnd}
		case p.cur() == "OR":
			p.nextToken()
			right, rerr := p.parseExpression(orPrecedence)
			if rerr != nil {
				return nil, rerr
			}
			left = &BinaryExpr{Left: left, Right: right, Op: OpOr}
		default:
			return left, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parseBinary(left Expression, prec int) (Expression, error) {
	op, ok := binaryOpForToken(p.curToken.Type)
	if !ok {
		return nil, fmt.Errorf("parser: unexpected operator %s", p.curToken.Literal)
	}
	p.nextToken()
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Left: left, Right: right, Op: op}, nil
}

func (p *Parser) parseIsNull(left Expression) (Expression, error) {
	if err := p.consumeKeyword("IS"); err != nil {
		return nil, err
	}
	negated := p.consumeIfKeyword("NOT")
	if err := p.consumeKeyword("NULL"); err != nil {
		return nil, err
	}
	return &IsNullExpr{Expr: left, Negated: negated}, nil
}

func (p *Parser) parsePrefix() (Expression, error) {
	switch p.curToken.Type {
	case lexer.Ident:
		return p.parseIdentExpression()
	case lexer.String:
		lit := Literal{Kind: LiteralString, Value: p.curToken.Literal}
		p.nextToken()
		return &LiteralExpr{Literal: lit}, nil
	case lexer.Number:
		lit := Literal{Kind: LiteralNumber, Value: p.curToken.Literal}
		p.nextToken()
		return &LiteralExpr{Literal: lit}, nil
	case lexer.QuestionMark:
		p.nextToken()
		return &LiteralExpr{Literal: Literal{Kind: LiteralParam, Value: "?"}}, nil
	case lexer.Plus:
		p.nextToken()
		operand, err := p.parseExpression(unaryPrecedence)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: UnaryPlus, Expr: operand}, nil
	case lexer.Minus:
		p.nextToken()
		operand, err := p.parseExpression(unaryPrecedence)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: UnaryMinus, Expr: operand}, nil
	case lexer.LParen:
		p.nextToken()
		if p.cur() == "SELECT" {
			query, err := p.parseSelectStmt()
			if err != nil {
				return nil, err
			}
			if err := p.expect(lexer.RParen, ")"); err != nil {
				return nil, err
			}
			return &SubqueryExpr{Query: query}, nil
		}
		inner, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("parser: unexpected token %s in expression", p.curToken.Literal)
	}
}

func (p *Parser) parseIdentExpression() (Expression, error) {
	upper := p.cur()
	switch upper {
	case "TRUE", "FALSE":
		p.nextToken()
		return &LiteralExpr{Literal: Literal{Kind: LiteralBoolean, Value: upper}}, nil
	case "NULL":
		p.nextToken()
		return &LiteralExpr{Literal: Literal{Kind: LiteralNull, Value: upper}}, nil
	case "NOT":
		p.nextToken()
		operand, err := p.parseExpression(notPrecedence)
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: operand}, nil
	case "CASE":
		return p.parseCase()
	case "CAST":
		return p.parseCast()
	}

	name := p.curToken.Literal
	p.nextToken()
	if p.curToken.Type == lexer.Dot {
		p.nextToken()
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: name, Name: col}, nil
	}
	if p.curToken.Type == lexer.LParen {
		return p.parseFunctionCall(name)
	}
	return &ColumnRef{Name: name}, nil
}

func (p *Parser) parseFunctionCall(name string) (Expression, error) {
	if err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	if p.curToken.Type == lexer.Star {
		p.nextToken()
		if err := p.expect(lexer.RParen, ")"); err != nil {
			return nil, err
		}
		return &FunctionCallExpr{Name: name, Star: true}, nil
	}
	if p.curToken.Type == lexer.RParen {
		p.nextToken()
		return &FunctionCallExpr{Name: name}, nil
	}
	args, err := p.parseExpressionListOpen()
	if err != nil {
		return nil, err
	}
	return &FunctionCallExpr{Name: name, Args: args}, nil
}

func (p *Parser) parseCase() (Expression, error) {
	if err := p.consumeKeyword("CASE"); err != nil {
		return nil, err
	}
	var operand Expression
	if p.cur() != "WHEN" {
		var err error
		operand, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	var whens []CaseWhen
	for p.cur() == "WHEN" {
		p.nextToken()
		when, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		if err := p.consumeKeyword("THEN"); err != nil {
			return nil, err
		}
		then, err := p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
		whens = append(whens, CaseWhen{When: when, Then: then})
	}
	var elseExpr Expression
	if p.consumeIfKeyword("ELSE") {
		var err error
		elseExpr, err = p.parseExpression(lowestPrecedence)
		if err != nil {
			return nil, err
		}
	}
	if err := p.consumeKeyword("END"); err != nil {
		return nil, err
	}
	return &CaseExpr{Operand: operand, Whens: whens, Else: elseExpr}, nil
}

func (p *Parser) parseCast() (Expression, error) {
	if err := p.consumeKeyword("CAST"); err != nil {
		return nil, err
	}
	if err := p.expect(lexer.LParen, "("); err != nil {
		return nil, err
	}
	inner, err := p.parseExpression(lowestPrecedence)
	if err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("AS"); err != nil {
		return nil, err
	}
	dt, length, precision, scale, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(lexer.RParen, ")"); err != nil {
		return nil, err
	}
	return &CastExpr{Expr: inner, TargetType: dt, Length: length, Precision: precision, Scale: scale}, nil
}
