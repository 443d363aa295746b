package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/guilhermemayrinkal/agribackend/cmd/agrictl/cli"
	"github.com/guilhermemayrinkal/agribackend/internal/app"
	"github.com/guilhermemayrinkal/agribackend/internal/auth"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/cache"
)

const usage = `usage:
  agrictl jobs stats [-json]
  agrictl jobs scan [-company <id>]
  agrictl session issue -kind <analyst|company|company_user|admin> -id <id> [-company <id>]
  agrictl session revoke -token <token>`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	if len(args) < 2 {
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	switch args[0] + " " + args[1] {
	case "jobs stats":
		fs := flag.NewFlagSet("jobs stats", flag.ContinueOnError)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisOpts)
		defer jobsCLI.Close()
		return jobsCLI.StatsCommand(ctx, cli.StatsOptions{JSONOutput: *jsonOut})
	case "jobs scan":
		fs := flag.NewFlagSet("jobs scan", flag.ContinueOnError)
		company := fs.String("company", "", "limit the scan to one company")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		jobsCLI := cli.NewJobsCLI(redisOpts)
		defer jobsCLI.Close()
		return jobsCLI.ScanCommand(ctx, cli.ScanOptions{CompanyID: *company})
	case "session issue", "session revoke":
		fs := flag.NewFlagSet(args[0]+" "+args[1], flag.ContinueOnError)
		kind := fs.String("kind", "", "principal kind")
		id := fs.String("id", "", "principal id")
		company := fs.String("company", "", "company id for company users")
		token := fs.String("token", "", "bearer token to revoke")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
			return 1
		}
		defer client.Close()
		store := auth.NewSessionStore(client, cfg.SessionTTL)
		if args[1] == "revoke" {
			return cli.RevokeSessionCommand(ctx, store, *token, os.Stderr)
		}
		return cli.IssueSessionCommand(ctx, store, cli.SessionOptions{Kind: *kind, ID: *id, CompanyID: *company})
	default:
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}
