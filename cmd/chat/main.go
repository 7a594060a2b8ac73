package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blossomlabs/intent-trader/internal/account"
	"github.com/blossomlabs/intent-trader/internal/config"
	"github.com/blossomlabs/intent-trader/internal/convo"
	"github.com/blossomlabs/intent-trader/internal/diag"
	"github.com/blossomlabs/intent-trader/internal/ledger"
	"github.com/blossomlabs/intent-trader/internal/observ"
)

func main() {
	var cfgPath, dbPath string
	flag.StringVar(&cfgPath, "config", "", "config path (empty = built-in defaults)")
	flag.StringVar(&dbPath, "db", "", "sqlite path for the message ledger (overrides config; empty = in-memory)")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		observ.Log("env_loaded", map[string]any{"file": ".env"})
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if dbPath != "" {
		cfg.Ledger.SQLitePath = dbPath
	}

	var store ledger.Store
	if cfg.Ledger.SQLitePath != "" {
		store, err = ledger.NewSQLite(cfg.Ledger.SQLitePath)
		if err != nil {
			log.Fatalf("open ledger: %v", err)
		}
	} else {
		store = ledger.NewMemoryStore()
	}
	defer store.Close()

	acct := account.NewSimProvider(cfg.Account.ValueUSD)
	msgLog := ledger.New(store, time.Duration(cfg.Conversation.DedupeWindowSecs)*time.Second, diag.LogSink{})
	engine := convo.NewEngine(cfg, msgLog, acct, diag.LogSink{})

	observ.Log("startup", map[string]any{
		"markets":         len(cfg.Markets),
		"ledger":          cfg.Ledger.SQLitePath,
		"account_usd":     cfg.Account.ValueUSD,
		"settle_delay_ms": cfg.Execution.SettleDelayMs,
	})

	fmt.Println("intent-trader chat — type a trade, or /help for commands")
	repl(engine, acct)
}

func repl(engine *convo.Engine, acct *account.SimProvider) {
	ctx := context.Background()
	sessionID := ""
	sc := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			var quit bool
			sessionID, quit = command(ctx, engine, acct, sessionID, line)
			if quit {
				return
			}
			continue
		}

		res, err := engine.ProcessTurn(ctx, convo.Turn{SessionID: sessionID, Text: line})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		sessionID = res.SessionID
		if res.Duplicate {
			fmt.Println("(duplicate message ignored)")
			continue
		}
		for _, m := range res.Messages {
			printMessage(m)
		}
	}
}

func command(ctx context.Context, engine *convo.Engine, acct *account.SimProvider, sessionID, line string) (string, bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return sessionID, true

	case "/help":
		fmt.Println("/new, /reset, /fund <usd>, /positions, /sessions, /history, /balance, /stats, /quit")

	case "/new":
		fmt.Println("(started a new session)")
		return "", false

	case "/reset":
		if sessionID == "" {
			fmt.Println("(nothing to reset)")
			break
		}
		res, err := engine.Reset(ctx, sessionID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range res.Messages {
			printMessage(m)
		}

	case "/fund":
		if len(fields) < 2 {
			fmt.Println("usage: /fund <usd>")
			break
		}
		amount, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || amount <= 0 {
			fmt.Println("usage: /fund <usd>")
			break
		}
		if sessionID == "" {
			acct.Deposit(ctx, amount)
			fmt.Printf("Added $%.2f to your account.\n", amount)
			break
		}
		res, err := engine.Fund(ctx, sessionID, amount)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range res.Messages {
			printMessage(m)
		}

	case "/positions":
		if sessionID == "" {
			fmt.Println("(no session yet)")
			break
		}
		for _, d := range engine.Drafts(sessionID) {
			fmt.Printf("%-10s %-5s %-9s margin $%.2f  %gx  notional $%.2f\n",
				d.Market, d.Side, d.Status, d.MarginUSD, d.Leverage, d.NotionalUSD)
		}

	case "/sessions":
		sessions, err := engine.Ledger().Sessions(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, s := range sessions {
			marker := " "
			if s.ID == sessionID {
				marker = "*"
			}
			fmt.Printf("%s %s  %q\n", marker, s.ID, s.Title)
		}

	case "/history":
		if sessionID == "" {
			fmt.Println("(no session yet)")
			break
		}
		msgs, err := engine.Ledger().Messages(ctx, sessionID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range msgs {
			fmt.Printf("%3d %-9s %s\n", m.Seq, m.Role, m.Text)
		}

	case "/balance":
		balances, err := acct.Balances(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, b := range balances {
			fmt.Printf("%-6s $%.2f\n", b.Symbol, b.BalanceUSD)
		}

	case "/stats":
		b, _ := json.MarshalIndent(observ.Snapshot(), "", "  ")
		fmt.Println(string(b))

	default:
		fmt.Println("unknown command; /help lists them")
	}
	return sessionID, false
}

func printMessage(m *ledger.Message) {
	prefix := "·"
	if m.RiskWarning {
		prefix = "⚠"
	}
	fmt.Printf("%s %s\n", prefix, m.Text)
}
