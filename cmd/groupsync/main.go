package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/beekhof/studygroup-sync/internal/auth"
	calclient "github.com/beekhof/studygroup-sync/internal/calendar"
	"github.com/beekhof/studygroup-sync/internal/config"
	"github.com/beekhof/studygroup-sync/internal/logging"
	"github.com/beekhof/studygroup-sync/internal/recurrence"
	"github.com/beekhof/studygroup-sync/internal/scheduler"
	filestore "github.com/beekhof/studygroup-sync/internal/storage/file"
	"github.com/beekhof/studygroup-sync/internal/storage/sqlite"
	"github.com/beekhof/studygroup-sync/internal/sync"
	"github.com/beekhof/studygroup-sync/internal/syncerr"
)

func printHelp() {
	writeHelp(os.Stderr)
}

func writeHelp(w io.Writer) {
	fmt.Fprintf(w, `Study Group Sync

Mirrors study group meetings, including repeating ones, onto each owner's Google
Calendar with a Meet link, and sends reminders shortly before each occurrence.

USAGE:
    %s [OPTIONS] COMMAND [COMMAND OPTIONS]

COMMANDS:
    link       Link a user's Google Calendar (opens an OAuth consent flow)
                   --user ID        User id to link (required)
                   --code CODE      Finish linking with a code copied by hand
                   --print-url      Print the consent URL for the manual flow and exit
    unlink     Remove a user's stored credentials
                   --user ID        User id to unlink (required)
    token      Print an access token the provider currently accepts
                   --user ID        User id (required)
    preview    Show the recurrence rule, description and occurrences of a meeting
                   --ics FILE       Also write the meeting as iCalendar ("-" for stdout)
    publish    Create the meeting on the owner's calendar, or update it if published before
    withdraw   Delete the meeting from the owner's calendar
                   --id ID          Meeting id (required)
    sweep      Send reminders for occurrences starting within the reminder lead
    serve      Run the reminder sweep on its schedule until interrupted

MEETING OPTIONS (preview, publish):
    --meeting FILE                JSON meeting file; the flags below override its fields
    --id ID                       Meeting id
    --user ID                     Owner user id (the calendar the meeting is published to)
    --title TEXT                  Title
    --description TEXT            Description
    --start TIME                  RFC 3339, or "YYYY-MM-DD HH:MM" in the configured time zone
    --duration DURATION           Length, e.g. 90m (default 1h)
    --attendees LIST              Comma-separated attendee emails
    --repeat PATTERN              daily, weekly or monthly (omit for a one-off meeting)
    --interval N                  Repeat every N days/weeks/months, 1-99 (default 1)
    --days LIST                   Weekdays for weekly meetings: MO,WE or 1,3 (Sunday is 0)
    --until DATE                  Last date of the series (YYYY-MM-DD or RFC 3339)

OPTIONS:
    -h, --help                    Show this help message and exit
    -v, --verbose                 Enable verbose output (show DEBUG logs)
    --config FILE                 Path to a JSON or YAML config file (optional)
    --google-credentials-path PATH Path to Google OAuth credentials JSON file
                                  (overrides config file and GOOGLE_CREDENTIALS_PATH env var)
    --db PATH                     Path to the SQLite database
                                  (overrides config file and GROUPSYNC_DB_PATH env var)
    --timezone TZ                 IANA time zone for meetings and output
                                  (overrides config file and GROUPSYNC_TIMEZONE env var)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (a .env file in the working directory is loaded first)
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    JSON, or YAML when the file name ends in .yaml or .yml. Example:
    {
      "google_credentials_path": "/path/to/credentials.json",
      "database_path": "/path/to/groupsync.db",
      "credential_store": "sqlite",
      "credential_file": "/path/to/credentials-store.json",
      "calendar_id": "primary",
      "timezone": "Europe/Berlin",
      "send_updates": "all",
      "reminder_schedule": "*/15 * * * *",
      "reminder_lead_minutes": 60,
      "max_occurrences": 52
    }

    The Google credentials JSON file should be in the format downloaded from
    Google Cloud Console. It should contain either an "installed" or "web"
    section with "client_id" and "client_secret" fields.

ENVIRONMENT VARIABLES:
        GOOGLE_CREDENTIALS_PATH          Path to Google OAuth credentials JSON file
        GROUPSYNC_DB_PATH                SQLite database path
        GROUPSYNC_CREDENTIAL_STORE       "sqlite" (default) or "file"
        GROUPSYNC_CREDENTIAL_FILE        Credential file used by the "file" store
        GROUPSYNC_CALENDAR_ID            Calendar to publish to (default: primary)
        GROUPSYNC_TIMEZONE               IANA time zone (default: UTC)
        GROUPSYNC_SEND_UPDATES           all, externalOnly or none (default: all)
        GROUPSYNC_REMINDER_SCHEDULE      Cron schedule of the reminder sweep (default: */15 * * * *)
        GROUPSYNC_REMINDER_LEAD_MINUTES  Minutes before an occurrence to remind (default: 60)
        GROUPSYNC_MAX_OCCURRENCES        Most occurrences computed per meeting (default: 52)

EXIT STATUS:
    0 success, 1 internal error, 2 invalid meeting, 3 calendar not linked or
    authorization revoked (run link again), 4 permission denied, 5 not found,
    6 invalid state change (publishing a withdrawn meeting or withdrawing an
    unpublished one), 7 calendar service error (safe to retry)

EXAMPLES:
    # Link a user's calendar
    %s link --user alice

    # Preview a fortnightly Monday/Wednesday study
    %s preview --id romans --user alice --title "Romans study" \
        --start "2026-03-02 18:00" --duration 90m --repeat weekly --interval 2 --days MO,WE

    # Publish it, then withdraw it
    %s publish --id romans --user alice --title "Romans study" --start "2026-03-02 18:00" --repeat weekly
    %s withdraw --id romans

    # Run reminders in the background
    %s --config /path/to/config.yaml serve

`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

// credentialStore is implemented by both credential backends.
type credentialStore interface {
	auth.CredentialStore
	auth.CredentialWriter
}

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlite.Storage
	tokens *auth.Manager
	linker *auth.Linker
	syncer *sync.Syncer
	out    io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}
	oauthConfig := auth.NewOAuthConfig(clientID, clientSecret)

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	var credentials credentialStore = db
	if cfg.CredentialStore == config.StoreFile {
		credentials = filestore.NewCredentialStore(cfg.CredentialFile)
	}

	api := calclient.NewClient(calclient.WithSendUpdates(cfg.SendUpdates))
	tokens := auth.NewManager(credentials, api, oauthConfig, logger)
	remote := calclient.NewSyncClient(tokens, api, cfg.CalendarID, calclient.WithLogger(logger))

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
		linker: auth.NewLinker(oauthConfig, credentials, os.Stdout, logger),
		syncer: sync.NewSyncer(remote, db,
			sync.WithNotifier(sync.LogNotifier{Logger: logger}),
			sync.WithReminderLead(cfg.ReminderLead()),
			sync.WithMaxOccurrences(cfg.MaxOccurrences),
			sync.WithLogger(logger),
		),
		out: os.Stdout,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "link":
		return a.link(ctx, args)
	case "unlink":
		return a.unlink(ctx, args)
	case "token":
		return a.token(ctx, args)
	case "preview":
		return a.preview(args)
	case "publish":
		return a.publish(ctx, args)
	case "withdraw":
		return a.withdraw(ctx, args)
	case "sweep":
		return a.sweep(ctx)
	case "serve":
		return a.serve(ctx)
	default:
		return fmt.Errorf("unknown command %q. Use --help for more information", command)
	}
}

func requireUser(fs *flag.FlagSet, user string) error {
	if user == "" {
		return fmt.Errorf("%s: --user is required", fs.Name())
	}
	return nil
}

func (a *app) link(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	user := fs.String("user", "", "User id to link")
	code := fs.String("code", "", "Authorization code copied by hand")
	printURL := fs.Bool("print-url", false, "Print the consent URL and exit")
	fs.Parse(args)

	if *printURL {
		fmt.Fprintln(a.out, a.linker.AuthCodeURL())
		return nil
	}
	if err := requireUser(fs, *user); err != nil {
		return err
	}
	if *code != "" {
		return a.linker.LinkWithCode(ctx, *user, *code)
	}
	return a.linker.Link(ctx, *user)
}

func (a *app) unlink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unlink", flag.ExitOnError)
	user := fs.String("user", "", "User id to unlink")
	fs.Parse(args)

	if err := requireUser(fs, *user); err != nil {
		return err
	}
	return a.linker.Unlink(ctx, *user)
}

func (a *app) token(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "User id")
	fs.Parse(args)

	if err := requireUser(fs, *user); err != nil {
		return err
	}
	token, err := a.tokens.GetValidAccessToken(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *app) preview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	mf := addMeetingFlags(fs)
	icsPath := fs.String("ics", "", "Write the meeting as iCalendar to FILE (\"-\" for stdout)")
	fs.Parse(args)

	m, err := mf.meeting(a.cfg.Location())
	if err != nil {
		return err
	}
	p, err := a.syncer.Preview(m)
	if err != nil {
		return err
	}

	if *icsPath != "" {
		return a.writeICS(*icsPath, m, p)
	}
	a.printPreview(p)
	return nil
}

func (a *app) printPreview(p *sync.Preview) {
	loc := a.cfg.Location()
	if p.Rule != "" {
		fmt.Fprintf(a.out, "Rule:        %s\n", p.Rule)
	}
	fmt.Fprintf(a.out, "Repeats:     %s\n", p.Description)
	if p.HasNext {
		fmt.Fprintf(a.out, "Next:        %s\n", p.Next.In(loc).Format("Mon Jan 2 2006 15:04 MST"))
	} else {
		fmt.Fprintln(a.out, "Next:        none")
	}
	fmt.Fprintf(a.out, "Occurrences: %d\n", len(p.Occurrences))
	for _, t := range p.Occurrences {
		fmt.Fprintf(a.out, "    %s\n", t.In(loc).Format("Mon Jan 2 2006 15:04 MST"))
	}
}

func (a *app) writeICS(path string, m sync.Meeting, p *sync.Preview) error {
	cal := recurrence.SeriesCalendar(recurrence.SeriesEvent{
		UID:         m.ID + "@groupsync",
		Summary:     m.Title,
		Description: m.Description,
		Start:       m.Start,
		End:         m.End(),
		Rule:        p.Rule,
		Stamp:       time.Now(),
	})

	if path == "-" {
		return recurrence.WriteICS(a.out, cal)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := recurrence.WriteICS(f, cal); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) publish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	mf := addMeetingFlags(fs)
	fs.Parse(args)

	m, err := mf.meeting(a.cfg.Location())
	if err != nil {
		return err
	}
	result, err := a.syncer.Publish(ctx, m)
	if err != nil {
		return err
	}

	verb := "Updated"
	if result.Created {
		verb = "Created"
	}
	fmt.Fprintf(a.out, "%s remote event %s\n", verb, result.Mirror.ExternalID)
	if result.Mirror.JoinLink != "" {
		fmt.Fprintf(a.out, "Join link: %s\n", result.Mirror.JoinLink)
	}
	a.printPreview(result.Preview)
	return nil
}

func (a *app) withdraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	id := fs.String("id", "", "Meeting id")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("withdraw: --id is required")
	}
	result, err := a.syncer.Withdraw(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Meeting %s: %s\n", *id, result)
	return nil
}

func (a *app) sweep(ctx context.Context) error {
	report, err := a.syncer.SweepReminders(ctx)
	fmt.Fprintf(a.out, "Checked %d meeting(s), sent %d reminder(s), %d failed\n", report.Checked, report.Sent, report.Failed)
	return err
}

func (a *app) serve(ctx context.Context) error {
	job, err := scheduler.NewJob("reminder-sweep", a.cfg.ReminderSchedule, func(ctx context.Context) error {
		_, err := a.syncer.SweepReminders(ctx)
		return err
	}, a.logger)
	if err != nil {
		return err
	}

	if err := job.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("serving reminders until interrupted", "schedule", a.cfg.ReminderSchedule, "lead", a.cfg.ReminderLead())
	<-ctx.Done()
	job.Stop()
	return nil
}

// exitCode maps an error to the documented exit status.
func exitCode(err error) int {
	switch syncerr.Kind(err) {
	case "validation":
		return 2
	case "auth", "missing_credential":
		return 3
	case "permission":
		return 4
	case "not_found":
		return 5
	case "invalid_transition":
		return 6
	case "sync":
		return 7
	default:
		return 1
	}
}

func main() {
	// Parse command-line flags
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose output (show DEBUG logs)")
	verboseFlagShort := flag.Bool("v", false, "Enable verbose output (shorthand)")
	configFile := flag.String("config", "", "Path to JSON or YAML config file (optional)")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH env var)")
	databasePath := flag.String("db", "", "Path to the SQLite database (overrides config file and GROUPSYNC_DB_PATH env var)")
	timeZone := flag.String("timezone", "", "IANA time zone (overrides config file and GROUPSYNC_TIMEZONE env var)")
	flag.Usage = printHelp
	flag.Parse()

	verbose := *verboseFlag || *verboseFlagShort

	// Show help if requested
	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		printHelp()
		os.Exit(2)
	}

	// Set up logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	logger := logging.New(os.Stderr, verbose)
	slog.SetDefault(logger)

	// A missing .env file is fine.
	_ = godotenv.Load()

	// Load configuration (precedence: flags > env vars > config file > defaults)
	cfg, err := config.LoadConfig(*configFile, *googleCredentialsPath, *databasePath, *timeZone)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logging.ContextWithLogger(ctx, logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("Failed to start: %v", err)
	}

	command := flag.Arg(0)
	err = a.run(ctx, command, flag.Args()[1:])
	a.close()
	stop()

	if err != nil {
		log.Printf("%s failed (%s): %v", command, syncerr.Kind(err), err)
		if syncerr.Kind(err) == "auth" || syncerr.Kind(err) == "missing_credential" {
			log.Printf("Run '%s link --user ID' to link the calendar again.", os.Args[0])
		}
		os.Exit(exitCode(err))
	}
}
