package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/nickyhof/dbaccess"
	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/server"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	engineName string
	dsn        string
	port       int
	journalDir string
	jwtSecret  string
	issuer     string
	audience   string
	tlsCert    string
	tlsKey     string
	cacheSize  int
)

var rootCmd = &cobra.Command{
	Use:     "dbaccess-server",
	Short:   "Serve a database engine over TCP",
	Long:    `dbaccess-server exposes one database connection to clients that send SQL statements, one per line, and read JSON responses.`,
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.Flags().StringVar(&engineName, "engine", "sqlite", "Database engine (sqlite, duckdb, mysql, postgres)")
	rootCmd.Flags().StringVar(&dsn, "dsn", ":memory:", "Data source name of the engine")
	rootCmd.Flags().IntVar(&port, "port", 3306, "TCP port to listen on")
	rootCmd.Flags().StringVar(&journalDir, "journal", "", "Journal directory (\":memory:\" for an in-memory journal, none if empty)")
	rootCmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "Require AUTH JWT with tokens signed by this secret")
	rootCmd.Flags().StringVar(&issuer, "issuer", "", "Expected JWT issuer")
	rootCmd.Flags().StringVar(&audience, "audience", "", "Expected JWT audience")
	rootCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "TLS certificate file")
	rootCmd.Flags().StringVar(&tlsKey, "tls-key", "", "TLS key file")
	rootCmd.Flags().IntVar(&cacheSize, "cache-size", -1, "Page cache size of engines that support it")

	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// glog reads its settings from the go flag set, which cobra filled in.
	flag.CommandLine.Parse(nil)
	defer glog.Flush()
	defer core.ReportUnhandled()

	if (tlsCert == "") != (tlsKey == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be given together")
	}

	access, err := dbaccess.Open(context.Background(), dbaccess.Config{
		Engine:   engineName,
		DSN:      dsn,
		Journal:  journalDir,
		Identity: core.Identity{Name: "dbaccess server", Email: "server@dbaccess.local"},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := access.Close().Err(); err != nil {
			glog.Warningf("Failed to close database: %v", err)
		}
	}()

	if cacheSize >= 0 {
		result := access.SetCaching(cacheSize, -1)
		if !result.IsOk() {
			return result.Err()
		}
		if result.HaveWarning() {
			glog.Warning(result.Message())
		}
	}

	var srv *server.Server
	if jwtSecret != "" {
		glog.Info("JWT authentication enabled")
		srv = server.NewServerWithAuth(access, &server.AuthConfig{
			Enabled:   true,
			JWTSecret: jwtSecret,
			Issuer:    issuer,
			Audience:  audience,
		})
	} else {
		srv = server.NewServer(access)
	}

	addr := fmt.Sprintf(":%d", port)
	if tlsCert != "" {
		err = srv.StartTLS(addr, tlsCert, tlsKey)
	} else {
		err = srv.Start(addr)
	}
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("dbaccess server v%s (%s)\n", Version, access.Dialect().Name)
	fmt.Printf("Listening on port %d\n", port)
	fmt.Println("Send SQL statements (one per line), 'quit' to disconnect")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	glog.Info("Shutting down...")
	srv.Stop()
	glog.Info("Server stopped")
	return nil
}
