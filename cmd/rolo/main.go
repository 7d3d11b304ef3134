package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/szymonk92/rolo/internal/commit"
	"github.com/szymonk92/rolo/internal/config"
	"github.com/szymonk92/rolo/internal/conflict"
	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/extract"
	"github.com/szymonk92/rolo/internal/llm"
	"github.com/szymonk92/rolo/internal/mcp"
	"github.com/szymonk92/rolo/internal/ratelimit"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/store"
	"github.com/szymonk92/rolo/internal/triage"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:])
	case "add":
		err = runAdd(os.Args[2:])
	case "add-person":
		err = runAddPerson(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "conflicts":
		err = runConflicts(os.Args[2:])
	case "people":
		err = runPeople(os.Args[2:])
	case "relations":
		err = runRelations(os.Args[2:])
	case "mark-past":
		err = runMarkPast(os.Args[2:])
	case "limits":
		err = runLimits(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("rolo %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOpts are the flags every subcommand accepts.
type globalOpts struct {
	configPath string
	dbPath     string
	llmFlag    string
	rest       []string
}

// parseGlobal strips --config/--db/--llm from args, returning the rest.
func parseGlobal(args []string) (globalOpts, error) {
	var opts globalOpts
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case arg == "--db" && i+1 < len(args):
			opts.dbPath = args[i+1]
			i++
		case arg == "--llm" && i+1 < len(args):
			opts.llmFlag = args[i+1]
			i++
		default:
			opts.rest = append(opts.rest, arg)
		}
	}
	return opts, nil
}

func resolve(opts globalOpts) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: opts.configPath,
		CLIDBPath:  opts.dbPath,
		CLILLM:     opts.llmFlag,
	})
}

func openStore(cfg config.ResolvedConfig) (store.Store, error) {
	return store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
}

func buildLimiter(cfg config.ResolvedConfig) *ratelimit.Limiter {
	l := ratelimit.New(ratelimit.DefaultCaps())
	l.Configure(cfg.RateCaps)
	return l
}

func buildProvider(cfg config.ResolvedConfig) (llm.Provider, error) {
	llmCfg, err := llm.ParseFlag(cfg.LLMProvider.Value)
	if err != nil {
		return nil, err
	}
	if cfg.LLMAPIKey.Value != "" {
		llmCfg.APIKey = cfg.LLMAPIKey.Value
	}
	return llm.NewProvider(llmCfg)
}

func runExtract(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}

	var (
		storyPath string
		present   string
		newNames  string
		dryRun    bool
	)
	rest := opts.rest
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "--present" && i+1 < len(rest):
			present = rest[i+1]
			i++
		case arg == "--new" && i+1 < len(rest):
			newNames = rest[i+1]
			i++
		case arg == "--dry-run" || arg == "-n":
			dryRun = true
		case strings.HasPrefix(arg, "-") && arg != "-":
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			storyPath = arg
		}
	}
	if storyPath == "" {
		return fmt.Errorf("usage: rolo extract <story-file|-> [--present id,id] [--new name,name] [--dry-run]")
	}

	var storyBytes []byte
	if storyPath == "-" {
		storyBytes, err = io.ReadAll(os.Stdin)
	} else {
		storyBytes, err = os.ReadFile(storyPath)
	}
	if err != nil {
		return fmt.Errorf("reading story: %w", err)
	}
	story := strings.TrimSpace(string(storyBytes))
	if story == "" {
		return fmt.Errorf("story is empty")
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	roster, err := s.ListPeople(ctx)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}
	existing, err := s.ListRelations(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading relations: %w", err)
	}

	var mentions []entity.Mention
	for _, id := range splitCSV(present) {
		p, err := s.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("unknown person id %q", id)
		}
		mentions = append(mentions, entity.Mention{Name: p.Name, ConfirmedPresentID: p.ID})
	}
	for _, name := range splitCSV(newNames) {
		mentions = append(mentions, entity.Mention{Name: name, ConfirmedNew: true})
	}

	ex := extract.NewExtractor(provider, buildLimiter(cfg))
	out, err := ex.Extract(ctx, extract.Request{
		Story:    story,
		Roster:   roster,
		Existing: existing,
		Mentions: mentions,
	})
	if err != nil {
		return err
	}

	if out.RateLimited {
		fmt.Printf("Rate limited. Retry in %ds (minute: %d left, hour: %d left, day: %d left)\n",
			out.Limit.RetryAfterSeconds, out.Limit.RemainingMinute, out.Limit.RemainingHour, out.Limit.RemainingDay)
		return nil
	}

	printOutcome(out)

	if dryRun {
		fmt.Println("\nDry run mode — no changes were written")
		return nil
	}

	rep, err := commit.NewWriter(s).ApplyOutcome(ctx, out)
	if err != nil {
		return err
	}
	fmt.Printf("\nCommitted: %d people, %d relations, %d marked past, %d rejected\n",
		rep.PeopleAdded, rep.RelationsAdded, rep.MarkedPast, rep.Rejected)
	return nil
}

func printOutcome(out *extract.Outcome) {
	if len(out.People) > 0 {
		fmt.Printf("People (%d):\n", len(out.People))
		for _, p := range out.People {
			tag := ""
			if p.IsNew {
				tag = " (new)"
			}
			fmt.Printf("  %s%s\n", p.Name, tag)
		}
	}
	if len(out.Safe) > 0 {
		fmt.Printf("Relations (%d):\n", len(out.Safe))
		for _, r := range out.Safe {
			fmt.Printf("  %s —[%s]→ %s\n", r.SubjectName, r.Type, r.ObjectLabel)
		}
	}
	if len(out.Rejected) > 0 {
		fmt.Printf("Rejected (%d):\n", len(out.Rejected))
		for _, rej := range out.Rejected {
			fmt.Printf("  %s —[%s]→ %s: %s\n",
				rej.Candidate.SubjectName, rej.Candidate.Type, rej.Candidate.ObjectLabel, rej.Conflict.Description)
		}
	}
	if len(out.Conflicts) > 0 {
		fmt.Printf("Conflicts:\n%s\n", triage.Summary(out.Conflicts))
	}
	if len(out.Ambiguous) > 0 {
		fmt.Printf("Ambiguous names (%d):\n", len(out.Ambiguous))
		for _, a := range out.Ambiguous {
			var names []string
			for _, c := range a.PossibleMatches {
				names = append(names, c.Name)
			}
			fmt.Printf("  %q could be: %s\n", a.NameInStory, strings.Join(names, ", "))
		}
	}
	for _, w := range out.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}

func runAdd(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}

	var (
		positional []string
		intensity  string
		category   string
	)
	rest := opts.rest
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "--intensity" && i+1 < len(rest):
			intensity = rest[i+1]
			i++
		case arg == "--category" && i+1 < len(rest):
			category = rest[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) != 3 {
		return fmt.Errorf("usage: rolo add <subject-id> <type> <object> [--intensity low|medium|high] [--category c]")
	}

	relType, err := relation.ParseType(positional[1])
	if err != nil {
		return err
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	r := relation.Relation{
		SubjectID:   positional[0],
		Type:        relType,
		ObjectLabel: positional[2],
		Intensity:   relation.Intensity(intensity),
		Category:    category,
	}

	decision, rep, err := commit.NewWriter(s).AddManual(context.Background(), r)
	if err != nil {
		return err
	}
	if !decision.CanAdd {
		fmt.Println("Rejected:")
		fmt.Println(triage.Summary(decision.Conflicts))
		os.Exit(1)
	}
	fmt.Printf("Added: %s —[%s]→ %s\n", positional[0], relType, positional[2])
	if rep.MarkedPast > 0 {
		fmt.Printf("Marked %d superseded fact(s) as past\n", rep.MarkedPast)
	}
	for _, c := range decision.Conflicts {
		fmt.Printf("Note: %s\n", c.Description)
	}
	return nil
}

func runAddPerson(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}

	var (
		name     string
		nickname string
		ptype    string
	)
	rest := opts.rest
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "--nickname" && i+1 < len(rest):
			nickname = rest[i+1]
			i++
		case arg == "--type" && i+1 < len(rest):
			ptype = rest[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			name = arg
		}
	}
	if name == "" {
		return fmt.Errorf("usage: rolo add-person <name> [--nickname n] [--type primary|mentioned|placeholder]")
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	p := &relation.Person{Name: name, Nickname: nickname, Type: relation.PersonType(ptype)}
	if err := s.AddPerson(context.Background(), p); err != nil {
		return err
	}
	fmt.Printf("Added %s (id: %s)\n", p.Name, p.ID)
	return nil
}

func runCheck(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	if len(opts.rest) != 3 {
		return fmt.Errorf("usage: rolo check <subject-id> <type> <object>")
	}

	relType, err := relation.ParseType(opts.rest[1])
	if err != nil {
		return err
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	existing, err := s.ListRelationsBySubject(context.Background(), opts.rest[0])
	if err != nil {
		return err
	}

	candidate := relation.Relation{
		SubjectID:   opts.rest[0],
		Type:        relType,
		ObjectLabel: opts.rest[2],
		Confidence:  1.0,
		Status:      relation.StatusCurrent,
	}
	v := conflict.ValidateRelation(candidate, existing)

	if len(v.Conflicts) == 0 {
		fmt.Println("No conflicts.")
		return nil
	}
	fmt.Println(triage.Summary(v.Conflicts))
	for _, c := range v.Conflicts {
		fmt.Println(triage.Explain(c))
	}
	if !v.Valid {
		os.Exit(1)
	}
	return nil
}

func runConflicts(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	people, err := s.ListPeople(ctx)
	if err != nil {
		return err
	}
	if len(opts.rest) > 0 {
		p, err := s.GetPerson(ctx, opts.rest[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("unknown person id %q", opts.rest[0])
		}
		people = []relation.Person{*p}
	}

	found := 0
	for _, p := range people {
		rels, err := s.ListRelationsBySubject(ctx, p.ID)
		if err != nil {
			return err
		}
		conflicts := scanRelations(rels)
		if len(conflicts) == 0 {
			continue
		}
		found += len(conflicts)
		fmt.Printf("%s:\n%s\n", p.Name, triage.Summary(conflicts))
		for _, c := range conflicts {
			fmt.Println(triage.Explain(c))
		}
	}
	if found == 0 {
		fmt.Println("No conflicts across stored relations.")
	}
	return nil
}

// scanRelations runs pairwise detection over one person's current
// relations. Both orderings of each pair are tried because the
// temporal detector is direction-sensitive; symmetric detectors
// report the same description twice, so results are deduplicated.
func scanRelations(rels []relation.Relation) []conflict.Detected {
	var current []relation.Relation
	for _, r := range rels {
		if r.Status != relation.StatusPast {
			current = append(current, r)
		}
	}

	var out []conflict.Detected
	seen := make(map[string]bool)
	for i, r := range current {
		others := make([]relation.Relation, 0, len(current)-1)
		others = append(others, current[:i]...)
		others = append(others, current[i+1:]...)
		for _, c := range conflict.Detect(r, others) {
			if seen[c.Description] {
				continue
			}
			seen[c.Description] = true
			out = append(out, c)
		}
	}
	return out
}

func runPeople(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	people, err := s.ListPeople(context.Background())
	if err != nil {
		return err
	}
	if len(people) == 0 {
		fmt.Println("No people recorded yet. Use 'rolo add-person <name>' to start.")
		return nil
	}
	for _, p := range people {
		nick := ""
		if p.Nickname != "" {
			nick = fmt.Sprintf(" (%s)", p.Nickname)
		}
		fmt.Printf("%s  %s%s  [%s]\n", p.ID, p.Name, nick, p.Type)
	}
	return nil
}

func runRelations(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	var rels []relation.Relation
	if len(opts.rest) > 0 {
		rels, err = s.ListRelationsBySubject(ctx, opts.rest[0])
	} else {
		rels, err = s.ListRelations(ctx, 100)
	}
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Println("No relations recorded.")
		return nil
	}
	for _, r := range rels {
		status := ""
		if r.Status == relation.StatusPast {
			status = " [past]"
		}
		fmt.Printf("#%d  %s —[%s]→ %s%s\n", r.ID, r.SubjectName, r.Type, r.ObjectLabel, status)
	}
	return nil
}

func runMarkPast(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	if len(opts.rest) != 1 {
		return fmt.Errorf("usage: rolo mark-past <relation-id>")
	}
	id, err := strconv.ParseInt(opts.rest[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid relation id %q", opts.rest[0])
	}

	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.MarkRelationPast(ctx, id); err != nil {
		return err
	}
	if err := s.LogEvent(ctx, &store.Event{EventType: store.EventRelationMarkedPast, RelationID: id}); err != nil {
		return err
	}
	fmt.Printf("Relation %d marked as past\n", id)
	return nil
}

func runLimits(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}

	limiter := buildLimiter(cfg)
	caps := limiter.Caps()
	st := limiter.CheckLimit()
	fmt.Printf("Extraction caps: %d/min, %d/hour, %d/day\n", caps.PerMinute, caps.PerHour, caps.PerDay)
	fmt.Printf("Remaining now:   %d/min, %d/hour, %d/day\n", st.RemainingMinute, st.RemainingHour, st.RemainingDay)
	return nil
}

func runStats(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("People:            %d\n", stats.PeopleCount)
	fmt.Printf("Current relations: %d\n", stats.RelationCount)
	fmt.Printf("Past relations:    %d\n", stats.PastCount)
	fmt.Printf("Events logged:     %d\n", stats.EventCount)
	fmt.Printf("Database size:     %.1f KB\n", float64(stats.DBSizeBytes)/1024)
	return nil
}

func runConfig(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runServe(args []string) error {
	opts, err := parseGlobal(args)
	if err != nil {
		return err
	}
	cfg, err := resolve(opts)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// An MCP server without an API key still serves the read and
	// manual-write tools; only rolo_extract needs the provider.
	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: LLM unavailable (%v); rolo_extract disabled\n", err)
		provider = nil
	}

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:    s,
		Limiter:  buildLimiter(cfg),
		Provider: provider,
		Version:  version,
	})
	return server.ServeStdio(srv)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printUsage() {
	fmt.Printf(`rolo %s — Personal relationship tracker with conflict-aware memory

Usage:
  rolo <command> [arguments]

Commands:
  extract <file|->       Extract relations from a story (LLM), screen, and commit
  add <id> <type> <obj>  Add one relation manually (screened for conflicts)
  add-person <name>      Add a person to the roster
  check <id> <type> <o>  Check a hypothetical relation for conflicts
  conflicts [id]         Scan stored relations for conflicts, all people or one
  people                 List known people
  relations [id]         List relations, optionally for one person
  mark-past <rel-id>     Mark a relation as no longer current
  limits                 Show extraction rate-limit status
  stats                  Show database statistics
  config                 Print resolved configuration
  serve                  Run the MCP server on stdio
  version                Print version

Flags (all commands):
  --config <path>        Config file (default ~/.rolo/config.yaml)
  --db <path>            Database file (default ~/.rolo/rolo.db)
  --llm <prov/model>     LLM to use, e.g. google/gemini-2.5-flash

Extract Flags:
  --present <id,id>      People confirmed present in the story
  --new <name,name>      Names confirmed to be new people
  -n, --dry-run          Screen only, write nothing
`, version)
}
