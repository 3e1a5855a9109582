package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	rlnats "github.com/Strob0t/requestline/internal/adapter/nats"
	"github.com/Strob0t/requestline/internal/adapter/postgres"
	"github.com/Strob0t/requestline/internal/config"
	"github.com/Strob0t/requestline/internal/domain/change"
	"github.com/Strob0t/requestline/internal/domain/tenant"
	"github.com/Strob0t/requestline/internal/port/broadcast"
	"github.com/Strob0t/requestline/internal/port/database"
	"github.com/Strob0t/requestline/internal/service"
)

// runAdmin dispatches admin subcommands (create-tenant, list-tenants, reset-event, migrate-status).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "reset-event":
		return runAdminResetEvent(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: requestline admin <command> [options]

Commands:
  create-tenant   Create a host account with an offline event
  list-tenants    List all host accounts
  reset-event     Force a party offline and close its pages
  migrate-status  Show the applied and embedded schema versions
  help            Show this help message

Examples:
  requestline admin create-tenant --handle night-owls
  requestline admin list-tenants
  requestline admin reset-event --handle night-owls
`)
}

// adminDeps holds the services admin commands need. Changes are published
// through NATS when configured so running replicas notify their clients.
type adminDeps struct {
	auth    *service.AuthService
	events  *service.EventService
	tenants database.TenantStore
	cleanup func()
}

func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cleanups := []func(){pool.Close}

	var pub broadcast.Publisher = discard{}
	if cfg.NATS.URL != "" {
		queue, err := rlnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		cleanups = append(cleanups, func() { _ = queue.Drain() })
		pub = rlnats.NewRelay(queue, discard{})
	}

	events := service.NewEventService(store, service.NewChangeFeed(store, pub))
	return &adminDeps{
		auth:    service.NewAuthService(store, events, &cfg.Auth),
		events:  events,
		tenants: store,
		cleanup: func() {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		},
	}, nil
}

// discard drops changes when no replica can be reached.
type discard struct{}

func (discard) Publish(context.Context, change.Event) error { return nil }
func (discard) Deliver(change.Event)                         {}

func runAdminCreateTenant(args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	handle := fs.String("handle", "", "party handle (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *handle == "" {
		return fmt.Errorf("--handle is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	resp, err := deps.auth.Signup(ctx, tenant.SignupRequest{Handle: *handle, Password: pass})
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	codes, err := deps.events.AccessCodes(ctx, resp.Tenant.ID)
	if err != nil {
		return fmt.Errorf("read access codes: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant created: %s (%s)\n", resp.Tenant.Handle, resp.Tenant.ID)
	fmt.Fprintf(os.Stderr, "Guest PIN: %s\nBypass token: %s\n", codes.Pin, codes.BypassToken)
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	tenants, err := deps.tenants.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tSTATUS\tID\tCREATED")
	for i := range tenants {
		t := &tenants[i]
		status := "?"
		if ev, err := deps.events.Get(ctx, t.ID); err == nil {
			status = string(ev.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Handle, status, t.ID, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAdminResetEvent(args []string) error {
	fs := flag.NewFlagSet("reset-event", flag.ContinueOnError)
	handle := fs.String("handle", "", "party handle (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *handle == "" {
		return fmt.Errorf("--handle is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	t, err := deps.tenants.GetTenantByHandle(ctx, *handle)
	if err != nil {
		return fmt.Errorf("find tenant: %w", err)
	}
	ev, err := deps.events.Reset(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("reset event: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Event for %s is now %s\n", t.Handle, ev.Status)
	return nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applied, latest, err := postgres.MigrationStatus(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "applied %d, embedded %d\n", applied, latest)
	if applied < latest {
		fmt.Fprintln(os.Stderr, "Schema is behind; the server applies pending migrations on start.")
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
