package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/decks"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/intake"
	"github.com/conorfennell/knolsched/internal/sched"
	"github.com/conorfennell/knolsched/internal/storage"
)

const usage = `usage: knolsched [flags] <command> [args]

commands:
  init                      create the collection
  import DIR                add the notes in DIR's markdown files
  study                     review the due cards of the selected decks
  counts                    show the new, learning and review counts
  decks                     list every deck with its due counts
  select DECK               select a deck by name or id
  filter NAME QUERY         create a filtered deck from a search
  rebuild DID               refill a filtered deck
  empty DID                 return a filtered deck's cards home
  suspend IDS               suspend cards
  unsuspend IDS             unsuspend cards
  bury IDS                  bury cards until tomorrow
  unbury                    unbury every card in the selected decks
  forget IDS                turn cards back into new cards
  reschedule MIN MAX IDS    make cards reviews due in MIN to MAX days
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	db     *storage.DB
	sched  *sched.Scheduler
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

type command struct {
	args int // -1 accepts one or more
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"init":       {0, cmdInit},
	"import":     {1, cmdImport},
	"study":      {0, cmdStudy},
	"counts":     {0, cmdCounts},
	"decks":      {0, cmdDecks},
	"select":     {1, cmdSelect},
	"filter":     {2, cmdFilter},
	"rebuild":    {1, cmdRebuild},
	"empty":      {1, cmdEmpty},
	"suspend":    {-1, idsCommand((*sched.Scheduler).Suspend)},
	"unsuspend":  {-1, idsCommand((*sched.Scheduler).Unsuspend)},
	"bury":       {-1, idsCommand((*sched.Scheduler).Bury)},
	"unbury":     {0, cmdUnbury},
	"forget":     {-1, idsCommand((*sched.Scheduler).Forget)},
	"reschedule": {-1, cmdReschedule},
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	// 1. Load the layered configuration
	fs := config.NewFlagSet("knolsched")
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprint(errOut, usage, "\nflags:\n")
		fs.PrintDefaults()
	}
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.Logger(errOut)
	if err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
	cmdArgs := rest[1:]
	if (cmd.args >= 0 && len(cmdArgs) != cmd.args) || (cmd.args < 0 && len(cmdArgs) == 0) {
		return fmt.Errorf("wrong number of arguments for %s", rest[0])
	}

	// 2. Open the database; every command works on an initialised collection
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.InitCollection(ctx, collectionStart(time.Now()), cfg.Defaults); err != nil {
		return fmt.Errorf("failed to initialise collection: %w", err)
	}
	logger.Debug("database opened", "path", cfg.DB)

	// 3. Build the scheduler
	a := &app{cfg: cfg, db: db, logger: logger, in: in, out: out}
	a.sched = sched.New(db,
		sched.WithLogger(logger),
		sched.WithOptions(cfg.Scheduler.Options()),
		sched.WithHandlers(a.logEvent),
	)
	return cmd.run(ctx, a, cmdArgs)
}

// collectionStart returns the most recent 4am local time, where day
// indexes of a new collection start counting.
func collectionStart(now time.Time) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), 4, 0, 0, 0, now.Location())
	if now.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

func (a *app) logEvent(e sched.Event) {
	switch e := e.(type) {
	case sched.LeechDetected:
		a.logger.Warn("leech detected", "card", e.Card.ID, "lapses", e.Card.Lapses, "suspended", e.Suspended)
	case sched.DayRolledOver:
		a.logger.Info("new day", "today", e.Today)
	case sched.CardAnswered:
		a.logger.Debug("card answered", "card", e.Card.ID, "grade", e.Grade, "interval", e.Card.Interval)
	}
}

func cmdInit(ctx context.Context, a *app, _ []string) error {
	col, err := a.db.Collection(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Collection ready in %s, created %s.\n", a.cfg.DB, time.Unix(col.Created, 0).Format(time.DateOnly))
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	res, err := intake.Import(ctx, a.db, args[0], "Default", a.logger)
	if err != nil {
		return err
	}
	for _, did := range res.Decks {
		if err := a.sched.MaybeRandomizeDeck(ctx, did); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "Found %d notes in %d files: %d added, %d already known, %d errors.\n",
		res.Parsed, res.Files, res.Added, res.Skipped, len(res.Errors))
	if len(res.Errors) > 0 {
		fmt.Fprintln(a.out, "\nErrors:")
		for _, e := range res.Errors {
			fmt.Fprintf(a.out, "- %s\n", e)
		}
	}
	return nil
}

func cmdCounts(ctx context.Context, a *app, _ []string) error {
	c, err := a.sched.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "new %d  learning %d  review %d\n", c.New, c.Learn, c.Review)
	return nil
}

func cmdDecks(ctx context.Context, a *app, _ []string) error {
	list, err := a.sched.DeckDueList(ctx)
	if err != nil {
		return err
	}
	col, err := a.db.Collection(ctx)
	if err != nil {
		return err
	}
	for _, d := range list {
		marker := " "
		if d.ID == col.CurrentDeck {
			marker = "*"
		}
		depth := strings.Count(d.Name, domain.Separator)
		name := d.Name
		if i := strings.LastIndex(name, domain.Separator); i >= 0 {
			name = name[i+len(domain.Separator):]
		}
		fmt.Fprintf(a.out, "%s %5d  %s%-30s %4d %4d %4d\n",
			marker, d.ID, strings.Repeat("  ", depth), name, d.New, d.Learn, d.Review)
	}
	return nil
}

func cmdSelect(ctx context.Context, a *app, args []string) error {
	all, err := a.db.Decks(ctx)
	if err != nil {
		return err
	}
	tree := decks.NewTree(all)
	deck := tree.ByName(args[0])
	if deck == nil {
		if id, err := strconv.ParseInt(args[0], 10, 64); err == nil {
			deck = tree.Get(id)
		}
	}
	if deck == nil {
		return fmt.Errorf("deck %q: %w", args[0], sched.ErrDeckNotFound)
	}
	if err := a.sched.SelectDeck(ctx, deck.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Selected %s.\n", deck.Name)
	return cmdCounts(ctx, a, nil)
}

func cmdFilter(ctx context.Context, a *app, args []string) error {
	spec := domain.FilterSpec{
		Query:      args[1],
		Limit:      100,
		Order:      domain.OrderOldestReviewed,
		Reschedule: true,
	}
	did, ids, err := a.sched.CreateFiltered(ctx, args[0], spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created filtered deck %d with %d cards.\n", did, len(ids))
	return nil
}

func cmdRebuild(ctx context.Context, a *app, args []string) error {
	did, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deck id %q: %w", args[0], err)
	}
	ids, err := a.sched.RebuildFiltered(ctx, did)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Filtered deck %d now holds %d cards.\n", did, len(ids))
	return nil
}

func cmdEmpty(ctx context.Context, a *app, args []string) error {
	did, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deck id %q: %w", args[0], err)
	}
	return a.sched.EmptyFiltered(ctx, did)
}

func cmdUnbury(ctx context.Context, a *app, _ []string) error {
	return a.sched.UnburyActiveDecks(ctx)
}

func cmdReschedule(ctx context.Context, a *app, args []string) error {
	if len(args) < 3 {
		return errors.New("reschedule needs MIN MAX and at least one card id")
	}
	lo, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid minimum %q: %w", args[0], err)
	}
	hi, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid maximum %q: %w", args[1], err)
	}
	ids, err := parseIDs(args[2:])
	if err != nil {
		return err
	}
	return a.sched.Reschedule(ctx, ids, lo, hi)
}

func idsCommand(op func(*sched.Scheduler, context.Context, []int64) error) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return op(a.sched, ctx, ids)
	}
}

// parseIDs accepts ids as separate arguments, comma separated, or both.
func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			if field == "" {
				continue
			}
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid card id %q: %w", field, err)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no card ids given")
	}
	return ids, nil
}
