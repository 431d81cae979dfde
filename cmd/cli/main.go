// Command cli is the operator tool for the ledger. It talks to storage
// directly through the same services the HTTP server uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/amirasaad/carefund/infra"
	"github.com/amirasaad/carefund/infra/initializer"
	"github.com/amirasaad/carefund/pkg/app"
	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain/account"
	accountsvc "github.com/amirasaad/carefund/pkg/service/account"
	"github.com/amirasaad/carefund/pkg/service/report"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"
	"gorm.io/gorm"
)

const usage = `Usage: cli <command> [arguments]

Commands:
  onboard <dependent_id> <caregiver_id> [category...]   create a dependent's accounts
  balances <dependent_id>                               show main and category balances
  history <account_id> [page]                           list an account's entries
  audit <dependent_id>                                  replay the ledger against balances
  freeze <account_id>                                   freeze an account
  unfreeze <account_id>                                 reactivate an account
  link <funder_id> <dependent_id>                       authorize a funder
  retry <payment_reference>                             re-run a failed distribution
  token <subject_id>                                    issue a bearer token
  migrate                                               apply database migrations`

var (
	errUsage = errors.New("invalid usage")

	ok    = color.New(color.FgGreen, color.Bold)
	warn  = color.New(color.FgYellow)
	fail  = color.New(color.FgRed, color.Bold)
	label = color.New(color.FgCyan)
)

func main() {
	if !term.IsTerminal(int(os.Stdout.Fd())) || config.GetEnvAsBool("NO_COLOR", false) {
		color.NoColor = true
	}
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}
	if err := execute(os.Args[1:]); err != nil {
		_, _ = fail.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func execute(args []string) error {
	cfg, err := config.Load(config.GetEnv("ENV_FILE", ".env"))
	if err != nil {
		return err
	}
	if args[0] == "migrate" {
		return migrate(cfg)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()
	a, err := app.New(deps)
	if err != nil {
		return err
	}
	return run(context.Background(), a, args, os.Stdout)
}

func migrate(cfg *config.App) error {
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		return err
	}
	defer closeDB(db)
	logger := initializer.NewLogger(cfg.Log)
	if err := infra.RunMigrations(db, cfg.DB.MigrationsPath, logger); err != nil {
		return err
	}
	_, _ = ok.Println("Migrations applied")
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// run dispatches one command against a wired app.
func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "onboard":
		return onboard(ctx, a, rest, out)
	case "balances":
		return balances(ctx, a, rest, out)
	case "history":
		return history(ctx, a, rest, out)
	case "audit":
		return audit(ctx, a, rest, out)
	case "freeze":
		return setStatus(ctx, a, rest, out, account.StatusFrozen)
	case "unfreeze":
		return setStatus(ctx, a, rest, out, account.StatusActive)
	case "link":
		return link(ctx, a, rest, out)
	case "retry":
		return retry(ctx, a, rest, out)
	case "token":
		return token(ctx, a, rest, out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func ids(args []string, n int) ([]uuid.UUID, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d id arguments: %w", n, errUsage)
	}
	out := make([]uuid.UUID, n)
	for i := range n {
		id, err := uuid.Parse(args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d %q is not a UUID: %w", i+1, args[i], errUsage)
		}
		out[i] = id
	}
	return out, nil
}

func onboard(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 2)
	if err != nil {
		return err
	}
	set, err := a.AccountService.CreateDependentAccountSet(ctx, accountsvc.OnboardCommand{
		DependentID: parsed[0],
		CaregiverID: parsed[1],
		Categories:  args[2:],
	})
	if err != nil {
		return err
	}
	_, _ = ok.Fprintf(out, "Onboarded dependent %s\n", set.Main.DependentID)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, acct := range set.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", acct.Label(), acct.ID, acct.Currency)
	}
	return w.Flush()
}

func balances(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 1)
	if err != nil {
		return err
	}
	b, err := a.ReportService.CategoryBalances(ctx, parsed[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(ab report.AccountBalance) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", label.Sprint(ab.Category), ab.Balance.StringFixed(2), b.Currency, ab.Status)
	}
	row(b.Main)
	for _, c := range b.Categories {
		row(c)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t\n", ok.Sprint("total"), b.Total.StringFixed(2), b.Currency)
	return w.Flush()
}

func history(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 1)
	if err != nil {
		return err
	}
	page := 1
	if len(args) > 1 {
		if page, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("page %q: %w", args[1], errUsage)
		}
	}
	p, err := a.ReportService.History(ctx, parsed[0], report.HistoryFilter{Page: page})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range p.Entries {
		amount := ok.Sprint(e.Amount.StringFixed(2))
		if e.Amount.IsNegative() {
			amount = warn.Sprint(e.Amount.StringFixed(2))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.Sequence, e.CreatedAt.Format("2006-01-02 15:04"), amount, e.BalanceAfter.StringFixed(2), e.Reference)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "page %d, %d of %d entries\n", p.Page, len(p.Entries), p.Total)
	if p.Warning != "" {
		_, _ = warn.Fprintln(out, p.Warning)
	}
	return nil
}

func audit(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 1)
	if err != nil {
		return err
	}
	r, err := a.ReportService.Audit(ctx, parsed[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accounts %d, entries %d, deposits %s, payouts %s, held %s\n",
		r.Accounts, r.Entries, r.Deposits.StringFixed(2), r.Payouts.StringFixed(2), r.Total.StringFixed(2))
	for _, f := range r.Findings {
		_, _ = fail.Fprintf(out, "  %s %s: %s (expected %s, got %s)\n",
			f.Category, f.AccountID, f.Problem, f.Expected, f.Actual)
	}
	if !r.OK() {
		return fmt.Errorf("audit of %s failed with %d findings", parsed[0], len(r.Findings))
	}
	_, _ = ok.Fprintln(out, "Audit passed")
	return nil
}

func setStatus(ctx context.Context, a *app.App, args []string, out io.Writer, status account.Status) error {
	parsed, err := ids(args, 1)
	if err != nil {
		return err
	}
	if err := a.AccountService.SetStatus(ctx, parsed[0], status); err != nil {
		return err
	}
	_, _ = ok.Fprintf(out, "Account %s is %s\n", parsed[0], status)
	return nil
}

func link(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 2)
	if err != nil {
		return err
	}
	if err := a.Authorizer.Link(ctx, parsed[0], parsed[1]); err != nil {
		return err
	}
	_, _ = ok.Fprintf(out, "Funder %s linked to %s\n", parsed[0], parsed[1])
	return nil
}

func retry(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("payment reference is required: %w", errUsage)
	}
	result, err := a.DepositGateway.RetryDistribution(ctx, args[0])
	if err != nil {
		return err
	}
	if result.AlreadyDistributed {
		_, _ = warn.Fprintf(out, "%s was already distributed\n", args[0])
		return nil
	}
	_, _ = ok.Fprintf(out, "Distributed %s, %s stays on main (%d entries)\n",
		result.Plan.Distributed.StringFixed(2), result.Plan.Remainder.StringFixed(2), len(result.Entries()))
	return nil
}

func token(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	parsed, err := ids(args, 1)
	if err != nil {
		return err
	}
	t, err := a.AuthService.GenerateToken(ctx, parsed[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(out, t)
	return nil
}
