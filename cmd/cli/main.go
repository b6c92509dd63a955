package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/golang/glog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nickyhof/dbaccess"
	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/journal"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	engineName    string
	dsn           string
	journalDir    string
	token         string
	useTLS        bool
	remoteDialect string
	literal       bool
	userName      string
	userEmail     string
	execute       string
	sqlFile       string
)

// CLI holds the CLI state
type CLI struct {
	access      *db.Access
	txn         *db.Transaction
	out         io.Writer
	history     []string
	historyFile string
}

var rootCmd = &cobra.Command{
	Use:     "dbaccess",
	Short:   "Interactive SQL shell for dbaccess engines",
	Long:    `dbaccess opens a connection to a local or remote engine and runs SQL statements typed at the prompt, given with -e or read from a file with -f.`,
	Version: Version,
	RunE:    runCLI,
}

func init() {
	rootCmd.Flags().StringVar(&engineName, "engine", "sqlite", "Database engine (sqlite, duckdb, mysql, postgres, remote)")
	rootCmd.Flags().StringVar(&dsn, "dsn", ":memory:", "Data source name, or host:port of a remote server")
	rootCmd.Flags().StringVar(&journalDir, "journal", "", "Journal directory (\":memory:\" for an in-memory journal, none if empty)")
	rootCmd.Flags().StringVar(&token, "token", "", "JWT sent to a remote server")
	rootCmd.Flags().BoolVar(&useTLS, "tls", false, "Connect to a remote server with TLS")
	rootCmd.Flags().StringVar(&remoteDialect, "remote-dialect", "", "Engine behind a remote server")
	rootCmd.Flags().BoolVar(&literal, "literal", false, "Send literal SQL instead of prepared statements")
	rootCmd.Flags().StringVar(&userName, "name", "dbaccess", "Journal author name")
	rootCmd.Flags().StringVar(&userEmail, "email", "cli@dbaccess.local", "Journal author email")
	rootCmd.Flags().StringVarP(&execute, "execute", "e", "", "Execute a statement and exit")
	rootCmd.Flags().StringVarP(&sqlFile, "file", "f", "", "Execute statements from a file and exit")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(cmd *cobra.Command, args []string) error {
	flag.CommandLine.Parse(nil)
	defer glog.Flush()
	defer core.ReportUnhandled()

	config := dbaccess.Config{
		Engine:        engineName,
		DSN:           dsn,
		Token:         token,
		RemoteDialect: remoteDialect,
		Journal:       journalDir,
		Identity:      core.Identity{Name: userName, Email: userEmail},
	}
	if useTLS {
		config.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if literal {
		usePrepared := false
		config.UsePrepared = &usePrepared
	}

	access, err := dbaccess.Open(context.Background(), config)
	if err != nil {
		return err
	}

	cli := NewCLI(access, os.Stdout)
	defer cli.Close()

	if execute != "" {
		return cli.execute(execute)
	}
	if sqlFile != "" {
		return cli.importFile(sqlFile)
	}

	printBanner(access.Dialect().Name)
	cli.historyFile = getHistoryPath()
	cli.loadHistory()
	return cli.run()
}

// NewCLI creates a shell over access that writes its output to out.
func NewCLI(access *db.Access, out io.Writer) *CLI {
	return &CLI{
		access:  access,
		out:     out,
		history: make([]string, 0),
	}
}

// Close rolls back an open transaction, saves the history and closes the
// connection.
func (cli *CLI) Close() {
	cli.saveHistory()
	if result := cli.access.Close(); !result.IsOk() {
		fmt.Fprintf(cli.out, "%s✗ Error: %s%s\n", ErrorColor, result.Message(), ResetColor)
	}
}

func printBanner(engine string) {
	fmt.Println()
	bannerWidth := 39
	versionLine := fmt.Sprintf("dbaccess v%s (%s)", Version, engine)
	padding := bannerWidth - len(versionLine) - 2
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║      Engine-agnostic SQL access       ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Println("Type .help for commands, .quit to exit")
	fmt.Println()
}

func (cli *CLI) run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cli.getPrompt(false),
		HistoryFile:       cli.historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	var multiLineBuffer strings.Builder
	for {
		rl.SetPrompt(cli.getPrompt(multiLineBuffer.Len() > 0))
		input, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			continue
		}
		if err != nil {
			fmt.Fprintf(cli.out, "\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			return nil
		}

		if strings.TrimSpace(input) == "" {
			continue
		}

		if multiLineBuffer.Len() == 0 && strings.HasPrefix(strings.TrimSpace(input), ".") {
			if cli.handleCommand(input) {
				return nil
			}
			continue
		}

		// Multi-line support: accumulate until we see a semicolon
		multiLineBuffer.WriteString(input)
		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}
		multiLineBuffer.Reset()

		query := strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
		if query == "" {
			continue
		}
		cli.addToHistory(query + ";")

		if err := cli.execute(query); err != nil {
			fmt.Fprintf(cli.out, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		}
	}
}

// execute runs one statement and displays its output.
func (cli *CLI) execute(query string) error {
	output, result := cli.access.Run(query)
	if !result.IsOk() {
		return result.Err()
	}
	if result.HaveWarning() {
		fmt.Fprintf(cli.out, "Warning: %s\n", result.Message())
	}
	output.Display(cli.out)
	return nil
}

func (cli *CLI) getPrompt(multiLine bool) string {
	if multiLine {
		return fmt.Sprintf("%s   ...>%s ", PromptColor, ResetColor)
	}

	txnPart := ""
	if cli.txn != nil && cli.txn.IsOpen() {
		txnPart = " [TXN]"
	}

	return fmt.Sprintf("%sdbaccess%s>%s ", PromptColor, txnPart, ResetColor)
}

// handleCommand runs a dot command. It returns true when the shell should
// exit.
func (cli *CLI) handleCommand(input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Fprintf(cli.out, "%sGoodbye!%s\n", SuccessColor, ResetColor)
		return true

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".begin":
		if cli.txn != nil && cli.txn.IsOpen() {
			cli.printError("A transaction is already open")
			break
		}
		txn, result := db.BeginTransaction(cli.access)
		if !result.IsOk() {
			cli.printError(result.Message())
			break
		}
		cli.txn = txn
		if len(parts) > 1 {
			txn.SetMessage(strings.Join(parts[1:], " "))
		}
		cli.printSuccess("Transaction started")

	case ".commit":
		if cli.txn == nil || !cli.txn.IsOpen() {
			cli.printError("No open transaction")
			break
		}
		cli.report(cli.txn.End(), "Transaction committed")
		cli.txn = nil

	case ".rollback":
		if cli.txn == nil || !cli.txn.IsOpen() {
			cli.printError("No open transaction")
			break
		}
		cli.report(cli.txn.Rollback(), "Transaction rolled back")
		cli.txn = nil

	case ".lastid":
		id, result := cli.access.LastInsertedRowIndex()
		if !result.IsOk() {
			cli.printError(result.Message())
			break
		}
		fmt.Fprintln(cli.out, id)

	case ".backup":
		if len(parts) < 2 {
			cli.printError("Usage: .backup <file|s3://bucket/key>")
			break
		}
		size, err := cli.access.Backup(context.Background(), parts[1], s3ConfigFromEnv())
		if err != nil {
			cli.printError(err.Error())
			break
		}
		cli.printSuccess(fmt.Sprintf("Snapshot written to %s (%d bytes)", parts[1], size))

	case ".log":
		limit := 10
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n < 1 {
				cli.printError("Usage: .log [count]")
				break
			}
			limit = n
		}
		cli.printLog(limit)

	case ".remote":
		cli.handleRemote(parts[1:])

	case ".push", ".pull":
		log := cli.access.Journal()
		if log == nil {
			cli.printError("No journal configured (start with --journal)")
			break
		}
		remoteName := ""
		if len(parts) > 1 {
			remoteName = parts[1]
		}
		var err error
		if strings.ToLower(parts[0]) == ".push" {
			err = log.Push(context.Background(), remoteName, gitAuthFromEnv())
		} else {
			err = log.Pull(context.Background(), remoteName, gitAuthFromEnv())
		}
		if err != nil {
			cli.printError(err.Error())
			break
		}
		cli.printSuccess("Journal synchronized")

	case ".history":
		cli.printHistory()

	case ".version":
		fmt.Fprintf(cli.out, "dbaccess version %s\n", Version)

	case ".import":
		if len(parts) > 1 {
			if err := cli.importFile(parts[1]); err != nil {
				cli.printError(err.Error())
			}
		} else {
			cli.printError("Usage: .import <file.sql>")
		}

	default:
		cli.printError(fmt.Sprintf("Unknown command: %s (type .help for commands)", parts[0]))
	}

	return false
}

func (cli *CLI) report(result core.Result, success string) {
	if !result.IsOk() {
		cli.printError(result.Message())
		return
	}
	if result.HaveWarning() {
		fmt.Fprintf(cli.out, "Warning: %s\n", result.Message())
	}
	cli.printSuccess(success)
}

func (cli *CLI) printError(message string) {
	fmt.Fprintf(cli.out, "%s✗ %s%s\n", ErrorColor, message, ResetColor)
}

func (cli *CLI) printSuccess(message string) {
	fmt.Fprintf(cli.out, "%s✓ %s%s\n", SuccessColor, message, ResetColor)
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s%sSpecial Commands:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Fprintln(cli.out, "  .help, .h          Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit       Exit the CLI")
	fmt.Fprintln(cli.out, "  .begin [message]   Start a transaction")
	fmt.Fprintln(cli.out, "  .commit            Commit the open transaction")
	fmt.Fprintln(cli.out, "  .rollback          Roll back the open transaction")
	fmt.Fprintln(cli.out, "  .lastid            Show the last inserted row index")
	fmt.Fprintln(cli.out, "  .backup <url>      Write a compressed snapshot to a file or s3:// URL")
	fmt.Fprintln(cli.out, "  .log [count]       Show recent journal entries")
	fmt.Fprintln(cli.out, "  .remote [add|remove]  List or change journal remotes")
	fmt.Fprintln(cli.out, "  .push [remote]     Push journal entries to a git remote")
	fmt.Fprintln(cli.out, "  .pull [remote]     Fast-forward the journal from a git remote")
	fmt.Fprintln(cli.out, "  .import <file>     Execute SQL statements from a file")
	fmt.Fprintln(cli.out, "  .history           Show command history")
	fmt.Fprintln(cli.out, "  .version           Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintln(cli.out, "Statements end with ';' and may span several lines.")
	fmt.Fprintln(cli.out)
}

func (cli *CLI) printLog(limit int) {
	log := cli.access.Journal()
	if log == nil {
		cli.printError("No journal configured (start with --journal)")
		return
	}
	entries, err := log.Entries()
	if err != nil {
		cli.printError(err.Error())
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(cli.out, "No journal entries")
		return
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	t := table.NewWriter()
	t.SetOutputMirror(cli.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Entry", "When", "Author", "Message", "Statements"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Sequence,
			entry.ID[:8],
			entry.When.Format("2006-01-02 15:04:05"),
			entry.Author.Name,
			entry.Message,
			entry.Statements,
		})
	}
	t.Render()
}

func (cli *CLI) handleRemote(args []string) {
	log := cli.access.Journal()
	if log == nil {
		cli.printError("No journal configured (start with --journal)")
		return
	}

	switch {
	case len(args) == 0:
		remotes, err := log.Remotes()
		if err != nil {
			cli.printError(err.Error())
			return
		}
		if len(remotes) == 0 {
			fmt.Fprintln(cli.out, "No remotes")
			return
		}
		for _, remote := range remotes {
			fmt.Fprintf(cli.out, "  %s\t%s\n", remote.Name, strings.Join(remote.URLs, ", "))
		}
	case args[0] == "add" && len(args) == 3:
		if err := log.AddRemote(args[1], args[2]); err != nil {
			cli.printError(err.Error())
			return
		}
		cli.printSuccess("Remote " + args[1] + " added")
	case args[0] == "remove" && len(args) == 2:
		if err := log.RemoveRemote(args[1]); err != nil {
			cli.printError(err.Error())
			return
		}
		cli.printSuccess("Remote " + args[1] + " removed")
	default:
		cli.printError("Usage: .remote [add <name> <url> | remove <name>]")
	}
}

// gitAuthFromEnv selects token or basic auth for journal remotes.
func gitAuthFromEnv() *journal.RemoteAuth {
	if token := os.Getenv("DBACCESS_GIT_TOKEN"); token != "" {
		return &journal.RemoteAuth{Type: journal.AuthTypeToken, Token: token}
	}
	if user := os.Getenv("DBACCESS_GIT_USER"); user != "" {
		return &journal.RemoteAuth{
			Type:     journal.AuthTypeBasic,
			Username: user,
			Password: os.Getenv("DBACCESS_GIT_PASSWORD"),
		}
	}
	if key := os.Getenv("DBACCESS_GIT_SSH_KEY"); key != "" {
		return &journal.RemoteAuth{Type: journal.AuthTypeSSH, KeyPath: key}
	}
	return nil
}

// s3ConfigFromEnv reads explicit S3 settings. Without them the default AWS
// credential chain is used.
func s3ConfigFromEnv() *db.S3Config {
	cfg := &db.S3Config{
		AccessKey: os.Getenv("DBACCESS_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("DBACCESS_S3_SECRET_KEY"),
		Region:    os.Getenv("DBACCESS_S3_REGION"),
		Endpoint:  os.Getenv("DBACCESS_S3_ENDPOINT"),
	}
	if *cfg == (db.S3Config{}) {
		return nil
	}
	return cfg
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}

	start := 0
	if len(cli.history) > 20 {
		start = len(cli.history) - 20
	}

	for i := start; i < len(cli.history); i++ {
		fmt.Fprintf(cli.out, "  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dbaccess_history")
}

// loadHistory reads the history file that readline appends to, so that
// .history shows earlier sessions too.
func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

// saveHistory trims the history file to the last 1000 entries.
func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	start := 0
	if len(cli.history) > 1000 {
		start = len(cli.history) - 1000
	}

	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}

// importFile reads and executes SQL statements from a file
func (cli *CLI) importFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	statements := splitStatements(string(data))

	successCount := 0
	errorCount := 0

	for i, stmt := range statements {
		output, result := cli.access.Run(stmt)
		if !result.IsOk() {
			fmt.Fprintf(cli.out, "%s[%d] ✗ %s%s\n", ErrorColor, i+1, truncate(stmt, 50), ResetColor)
			fmt.Fprintf(cli.out, "      Error: %s\n", result.Message())
			errorCount++
			continue
		}

		successCount++
		switch r := output.(type) {
		case db.QueryResult:
			fmt.Fprintf(cli.out, "%s[%d] ✓ %s (%d rows)%s\n", SuccessColor, i+1, truncate(stmt, 50), r.RecordsRead, ResetColor)
		default:
			fmt.Fprintf(cli.out, "%s[%d] ✓ %s%s\n", SuccessColor, i+1, truncate(stmt, 50), ResetColor)
		}
	}

	fmt.Fprintf(cli.out, "\n%s✓ Import complete: %d succeeded, %d failed%s\n",
		SuccessColor, successCount, errorCount, ResetColor)

	if errorCount > 0 {
		return fmt.Errorf("%d of %d statements failed", errorCount, len(statements))
	}
	return nil
}

// splitStatements splits SQL content into individual statements
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if (ch == '\'' || ch == '"') && (i == 0 || content[i-1] != '\\') {
			if !inString {
				inString = true
				stringChar = ch
			} else if ch == stringChar {
				inString = false
			}
		}

		if !inString && ch == '-' && i+1 < len(content) && content[i+1] == '-' {
			// Skip to end of line
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		}

		if !inString && ch == ';' {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	stmt := strings.TrimSpace(current.String())
	if stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
