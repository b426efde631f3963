package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/bootstrap"
	"github.com/Oniqq60/civic_report_system/internal/cfg"
	"github.com/Oniqq60/civic_report_system/internal/logger"
	"github.com/Oniqq60/civic_report_system/internal/resource"
)

var (
	app     = kingpin.New("civicctl", "Administrative tool for the civic report system")
	noColor = app.Flag("no-color", "Disable colored output").Bool()

	seedCmd  = app.Command("seed-resources", "Create or update field resources from a YAML file")
	seedFile = seedCmd.Flag("file", "Path to the resources YAML file").Short('f').Required().ExistingFile()

	listCmd    = app.Command("list-resources", "List field resources")
	listStatus = listCmd.Flag("status", "Filter by status (available, busy)").String()
	listSkill  = listCmd.Flag("skill", "Filter by skill tag").String()
	listJSON   = listCmd.Flag("json", "Print as JSON").Bool()

	releaseCmd = app.Command("release-resource", "Mark a busy resource as available again")
	releaseID  = releaseCmd.Arg("id", "Resource ID").Required().String()

	tokenCmd  = app.Command("issue-token", "Sign an access token for local testing")
	tokenUser = tokenCmd.Flag("user", "User ID").Required().String()
	tokenName = tokenCmd.Flag("name", "Display name").Default("").String()
	tokenRole = tokenCmd.Flag("role", "Role (citizen, technician, supervisor, admin)").Default("citizen").String()
	tokenTTL  = tokenCmd.Flag("ttl", "Token lifetime").Default("24h").Duration()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	if *noColor {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("civicctl:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	conf, err := cfg.LoadAdmin()
	if err != nil {
		return err
	}

	if command == tokenCmd.FullCommand() {
		return issueToken(conf)
	}

	log, err := logger.New(conf.Env, conf.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if conf.TaskStore == "memory" {
		return fmt.Errorf("TASK_STORE=memory keeps resources in process, nothing to administer")
	}
	stores, err := bootstrap.OpenStores(ctx, conf.TaskStore, conf.DB, conf.Mongo, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stores.Close(closeCtx); err != nil {
			log.Warn("close stores", zap.Error(err))
		}
	}()

	switch command {
	case seedCmd.FullCommand():
		return seedResources(ctx, stores.Resources, *seedFile)
	case listCmd.FullCommand():
		return listResources(ctx, stores.Resources, *listStatus, *listSkill, *listJSON)
	case releaseCmd.FullCommand():
		return releaseResource(ctx, stores.Resources, *releaseID)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func seedResources(ctx context.Context, directory resource.Directory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	resources, err := resource.LoadSeed(f)
	if err != nil {
		return err
	}
	for _, r := range resources {
		saved, err := directory.Upsert(ctx, r)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
		fmt.Printf("upserted %s (%s, version %d)\n", saved.ID, saved.Status, saved.Version)
	}
	fmt.Printf("%d resources seeded\n", len(resources))
	return nil
}

func listResources(ctx context.Context, directory resource.Directory, status, skill string, asJSON bool) error {
	filter := resource.Filter{Skill: skill}
	if status != "" {
		s, ok := resource.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		filter.Status = &s
	}

	resources, err := directory.Query(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resources)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS\tSKILLS\tLOCATION")
	for _, r := range resources {
		location := "-"
		if r.Lat != nil && r.Lng != nil {
			location = fmt.Sprintf("%.5f,%.5f", *r.Lat, *r.Lng)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n", r.ID, r.Name, r.Role, statusText(r.Status), []string(r.Skills), location)
	}
	return w.Flush()
}

// все значения колонки окрашены одинаково, выравнивание tabwriter не страдает
func statusText(s resource.Status) string {
	switch s {
	case resource.StatusAvailable:
		return color.GreenString("%s", s)
	case resource.StatusBusy:
		return color.YellowString("%s", s)
	default:
		return color.New(color.Reset).Sprint(s)
	}
}

func releaseResource(ctx context.Context, directory resource.Directory, id string) error {
	if err := directory.Release(ctx, id); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	fmt.Printf("resource %s is available\n", id)
	return nil
}

func issueToken(conf cfg.AdminConfig) error {
	// токен должен проходить проверку сервера
	if _, err := auth.NewVerifier(conf.JWTSecret, nil); err != nil {
		return err
	}
	role, ok := auth.ParseRole(*tokenRole)
	if !ok {
		return fmt.Errorf("unknown role %q", *tokenRole)
	}
	token, err := auth.SignToken(*tokenUser, *tokenName, role, *tokenTTL, []byte(conf.JWTSecret))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
