package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/replicator/internal/metrics"
	"github.com/betbot/replicator/internal/services"
	"github.com/betbot/replicator/internal/vault"
	"github.com/betbot/replicator/pkg/config"
	"github.com/betbot/replicator/pkg/logger"
	"github.com/betbot/replicator/pkg/pnl"
	"github.com/betbot/replicator/pkg/shutdown"
)

const usage = `usage: bfctl [-config file] [-metrics addr] <command> [flags]

commands:
  seed        write configured accounts into the vault
  accounts    list accounts and connection state
  upsert      create or update an account
  remove      delete an account and its session
  connect     interactive login, stores the session token
  disconnect  forget the session token
  relogin     log in again with stored credentials
  funds       account funds (all connected accounts when -name is empty)
  stats       monthly profit and loss
`

func main() {
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", getenv("BF_CONFIG", ""), "config file (yaml/json), empty for env only")
		metricsAddr = flag.String("metrics", "", "expvar/pprof listen address, e.g. 127.0.0.1:6060")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(logger.Config{
		Level:           cfg.Log.Level,
		OutputFile:      cfg.Log.File,
		MaxSize:         cfg.Log.MaxSize,
		MaxBackups:      cfg.Log.MaxBackups,
		MaxAge:          cfg.Log.MaxAge,
		Compress:        cfg.Log.Compress,
		DiagnosticsFile: cfg.DiagnosticsFile(),
	}); err != nil {
		fatal(err)
	}

	mgr := shutdown.NewManager()
	if *metricsAddr != "" {
		srv, err := metrics.StartAsync(ctx, *metricsAddr)
		if err != nil {
			fatal(err)
		}
		mgr.OnShutdown("metrics", srv.Shutdown)
		logger.Infof("metrics listening on %s", *metricsAddr)
	}

	svc, err := services.NewBetfairService(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	mgr.OnShutdown("betfair", svc.Close)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "seed":
		err = runSeed(ctx, svc)
	case "accounts":
		err = runAccounts(ctx, svc)
	case "upsert":
		err = runUpsert(ctx, svc, rest)
	case "remove":
		err = runRemove(ctx, svc, rest)
	case "connect":
		err = runConnect(ctx, svc, rest)
	case "disconnect":
		err = runDisconnect(ctx, svc, rest)
	case "relogin":
		err = runRelogin(ctx, svc, rest)
	case "funds":
		err = runFunds(ctx, svc, rest)
	case "stats":
		err = runStats(ctx, svc, rest)
	default:
		flag.Usage()
		os.Exit(2)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	mgr.Shutdown(shutdownCtx)
	cancel()

	if err != nil {
		fatal(err)
	}
}

func runSeed(ctx context.Context, svc *services.BetfairService) error {
	// 服务启动时已经写入，这里只报告结果
	recs, err := svc.Accounts.GetAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d accounts in vault (%d configured)\n", len(recs), len(svc.Config().Accounts))
	return nil
}

func runAccounts(ctx context.Context, svc *services.BetfairService) error {
	recs, err := svc.Accounts.GetAll(ctx)
	if err != nil {
		return err
	}
	connected, err := svc.Sessions.Connected(ctx)
	if err != nil {
		return err
	}
	isConnected := make(map[string]bool, len(connected))
	for _, name := range connected {
		isConnected[vault.Key(name)] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAPP KEY\tCREDENTIALS\tCERTIFICATE\tCONNECTED\tUPDATED")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\t%s\n",
			r.DisplayName, logger.Redact(r.AppKey), r.HasCredentials(), r.HasCertificate(),
			isConnected[vault.Key(r.DisplayName)], r.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// optional 只有显式传入的 flag 才写入，未传入的字段保持原值
func optional(fs *flag.FlagSet, name, value string) *string {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return nil
	}
	return &value
}

func runUpsert(ctx context.Context, svc *services.BetfairService, args []string) error {
	fs := flag.NewFlagSet("upsert", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	appKey := fs.String("appkey", "", "application key")
	username := fs.String("username", "", "exchange username")
	password := fs.String("password", "", "exchange password")
	certFile := fs.String("cert-file", "", "PKCS#12 client certificate file")
	certPassword := fs.String("cert-password", "", "certificate password")
	_ = fs.Parse(args)

	in := vault.AccountInput{
		DisplayName:         *name,
		AppKey:              *appKey,
		Username:            optional(fs, "username", *username),
		Password:            optional(fs, "password", *password),
		CertificatePassword: optional(fs, "cert-password", *certPassword),
	}
	if *certFile != "" {
		raw, err := os.ReadFile(*certFile)
		if err != nil {
			return err
		}
		b64 := base64.StdEncoding.EncodeToString(raw)
		in.CertificateBase64 = &b64
	}
	if err := svc.Accounts.Upsert(ctx, in); err != nil {
		return err
	}
	fmt.Printf("account %s saved\n", *name)
	return nil
}

func runRemove(ctx context.Context, svc *services.BetfairService, args []string) error {
	name, err := nameFlag("remove", args)
	if err != nil {
		return err
	}
	if err := svc.Accounts.Remove(ctx, name); err != nil {
		return err
	}
	if err := svc.Sessions.RemoveToken(ctx, name); err != nil {
		return err
	}
	svc.Invalidate(name)
	fmt.Printf("account %s removed\n", name)
	return nil
}

func runConnect(ctx context.Context, svc *services.BetfairService, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	username := fs.String("username", "", "exchange username")
	password := fs.String("password", getenv("BF_PASSWORD", ""), "exchange password (or BF_PASSWORD)")
	_ = fs.Parse(args)

	token, err := svc.Auth.Connect(ctx, *name, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("connected %s (token %s)\n", *name, logger.Redact(token))
	return nil
}

func runDisconnect(ctx context.Context, svc *services.BetfairService, args []string) error {
	name, err := nameFlag("disconnect", args)
	if err != nil {
		return err
	}
	if err := svc.Auth.Disconnect(ctx, name); err != nil {
		return err
	}
	fmt.Printf("disconnected %s\n", name)
	return nil
}

func runRelogin(ctx context.Context, svc *services.BetfairService, args []string) error {
	name, err := nameFlag("relogin", args)
	if err != nil {
		return err
	}
	token, err := svc.Auth.ReLogin(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("re-login ok for %s (token %s)\n", name, logger.Redact(token))
	return nil
}

func runFunds(ctx context.Context, svc *services.BetfairService, args []string) error {
	fs := flag.NewFlagSet("funds", flag.ExitOnError)
	name := fs.String("name", "", "display name (empty for every connected account)")
	_ = fs.Parse(args)

	var results []services.FundsResult
	if *name != "" {
		funds, err := svc.Funds(ctx, *name)
		results = append(results, services.FundsResult{DisplayName: *name, Funds: funds, Err: err})
	} else {
		all, err := svc.FundsAll(ctx)
		if err != nil {
			return err
		}
		results = all
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAVAILABLE\tEXPOSURE\tERROR")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t%v\n", r.DisplayName, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.DisplayName,
			r.Funds.AvailableToBetBalance.StringFixed(2), r.Funds.Exposure.StringFixed(2))
	}
	return w.Flush()
}

func runStats(ctx context.Context, svc *services.BetfairService, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	name := fs.String("name", "", "display name (default: first connected account)")
	months := fs.Int("months", 12, "number of months including the current one")
	_ = fs.Parse(args)

	account := *name
	if account == "" {
		first, err := svc.FirstConnected(ctx)
		if err != nil {
			return err
		}
		if first == "" {
			return fmt.Errorf("no connected account, run bfctl connect first")
		}
		account = first
	}

	rows, err := svc.Statistics(ctx, account, time.Now().UTC(), *months)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "MONTH\tBETS\tWON\tLOST\tSTAKE\tPROFIT\tROI %%\n")
	for _, r := range rows {
		printRow(w, r.Label(), r)
	}
	printRow(w, "TOTAL", pnl.Totals(rows))
	return w.Flush()
}

func printRow(w *tabwriter.Writer, label string, r pnl.Row) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\n", label, r.Bets, r.Wins, r.Losses,
		r.Stake.StringFixed(2), r.Profit.StringFixed(2), r.RoiPct.StringFixed(2))
}

func nameFlag(cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	name := fs.String("name", "", "display name")
	_ = fs.Parse(args)
	if strings.TrimSpace(*name) == "" {
		return "", fmt.Errorf("%s: -name is required", cmd)
	}
	return *name, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
