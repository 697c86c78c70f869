package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jomei/notionapi"

	"notionrelay/internal/config"
)

// Wizard guides the user through first-run configuration and installation.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard wired to the given I/O and logger.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
	}
}

// Run executes the interactive setup wizard. It walks the user through the
// Notion connection, database mappings, config file creation, and optional
// daemon install.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to NotionRelay Setup!\n")
	fmt.Fprintf(wiz.w, "This wizard will help you configure and install NotionRelay.\n\n")

	// Check for existing config.
	cfgPath, err := config.DefaultPath()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return wiz.offerDaemonInstall(ctx)
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: Notion connection.
	fmt.Fprintf(wiz.w, "Step 1/4 — Notion Connection\n")
	fmt.Fprintf(wiz.w, "  Create an internal integration at notion.so/my-integrations,\n")
	fmt.Fprintf(wiz.w, "  then share each database with it via the ••• menu.\n\n")

	token := wiz.prompt.Secret("Integration token (secret_...)")
	client := notionapi.NewClient(notionapi.Token(token))

	fmt.Fprintf(wiz.w, "  Connecting to Notion...")
	if err := ValidateToken(ctx, client); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach Notion: %w\n\n  Check the token, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	// Step 2: Discover & map lists to databases.
	fmt.Fprintf(wiz.w, "Step 2/4 — Database Mappings\n")

	mappings, err := wiz.buildMappings(ctx, client)
	if err != nil {
		return err
	}

	// Step 3: Poll interval.
	fmt.Fprintf(wiz.w, "Step 3/4 — Poll Interval\n")

	pollStr := wiz.prompt.String("How often to run a sync pass? (10s–5m)", "30s")
	pollInterval, parseErr := time.ParseDuration(pollStr)
	if parseErr != nil {
		pollInterval = 30 * time.Second
		fmt.Fprintf(wiz.w, "  (invalid duration, using default 30s)\n")
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: Write config.
	fmt.Fprintf(wiz.w, "Step 4/4 — Save Configuration\n")

	cfg := &config.Config{
		NotionToken:  token,
		PollInterval: pollInterval,
		Mappings:     mappings,
	}

	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)

	return wiz.offerDaemonInstall(ctx)
}

// buildMappings discovers Reminders lists and Notion databases, then lets the
// user pair them interactively. Each pairing inspects the database schema and
// binds the synced fields to concrete properties.
func (wiz *Wizard) buildMappings(ctx context.Context, client *notionapi.Client) ([]config.MappingConfig, error) {
	// Discover Reminders lists.
	fmt.Fprintf(wiz.w, "  Discovering Reminders lists (may trigger permissions prompt)...\n")
	remLists, remErr := DiscoverRemindersLists(wiz.logger)
	if remErr != nil {
		wiz.logger.Warn("could not discover Reminders lists", "error", remErr)
		fmt.Fprintf(wiz.w, "  ⚠ Could not list Reminders — you can type list names manually.\n")
	} else {
		fmt.Fprintf(wiz.w, "  Found %d Reminders list(s):\n", len(remLists))
		for _, l := range remLists {
			fmt.Fprintf(wiz.w, "    • %s (%d items)\n", l.Title, l.Count)
		}
	}
	fmt.Fprintf(wiz.w, "\n")

	// Discover Notion databases shared with the integration.
	fmt.Fprintf(wiz.w, "  Discovering Notion databases...\n")
	databases, dbErr := DiscoverDatabases(ctx, client)
	if dbErr != nil {
		wiz.logger.Warn("could not discover Notion databases", "error", dbErr)
		fmt.Fprintf(wiz.w, "  ⚠ Could not list databases — you can type database IDs manually.\n")
	} else {
		fmt.Fprintf(wiz.w, "  Found %d shared database(s):\n", len(databases))
		for _, d := range databases {
			fmt.Fprintf(wiz.w, "    • %s\n", d)
		}
	}
	fmt.Fprintf(wiz.w, "\n")

	// Interactive pairing.
	fmt.Fprintf(wiz.w, "  Pair Reminders lists with Notion databases:\n\n")

	dbNames := make([]string, len(databases))
	for i, d := range databases {
		dbNames[i] = d.String()
	}

	var mappings []config.MappingConfig
	for {
		var remName string
		if remErr == nil && len(remLists) > 0 {
			remOptions := make([]string, len(remLists))
			for i, l := range remLists {
				remOptions[i] = fmt.Sprintf("%s (%d items)", l.Title, l.Count)
			}
			remOptions = append(remOptions, "(done — finish mapping)")

			idx, err := wiz.prompt.Select("Reminders list", remOptions)
			if err != nil {
				return nil, fmt.Errorf("selecting Reminders list: %w", err)
			}
			if idx == len(remOptions)-1 {
				break
			}
			remName = remLists[idx].Title
		} else {
			remName = wiz.prompt.String("Reminders list (empty to finish)", "")
			if remName == "" {
				break
			}
		}

		var dbID string
		if dbErr == nil && len(databases) > 0 {
			idx, err := wiz.prompt.Select(fmt.Sprintf("Notion database for %q", remName), dbNames)
			if err != nil {
				return nil, fmt.Errorf("selecting Notion database: %w", err)
			}
			dbID = databases[idx].ID
		} else {
			dbID = wiz.prompt.String("Notion database ID", "")
			if dbID == "" {
				continue
			}
		}

		mapping, err := wiz.bindProperties(ctx, client, remName, dbID)
		if err != nil {
			wiz.logger.Warn("property binding failed", "database", dbID, "error", err)
			fmt.Fprintf(wiz.w, "  ⚠ Could not inspect database schema: %v\n", err)
			fmt.Fprintf(wiz.w, "    Using the title property only; edit the config to add more bindings.\n\n")
			mapping = config.MappingConfig{AppleList: remName, NotionDatabaseID: dbID}
		}

		mappings = append(mappings, mapping)
		fmt.Fprintf(wiz.w, "  ✓ Mapped %q → %s\n\n", remName, dbID)
	}

	if len(mappings) == 0 {
		return nil, fmt.Errorf("at least one mapping is required")
	}
	fmt.Fprintf(wiz.w, "\n")
	return mappings, nil
}

// bindProperties inspects the database schema and binds due date, priority,
// and completion to concrete properties. A single candidate binds
// automatically; multiple candidates prompt for a choice.
func (wiz *Wizard) bindProperties(ctx context.Context, client *notionapi.Client, remName, dbID string) (config.MappingConfig, error) {
	schema, err := InspectDatabase(ctx, client, dbID)
	if err != nil {
		return config.MappingConfig{}, err
	}

	mapping := config.MappingConfig{
		AppleList:        remName,
		NotionDatabaseID: dbID,
		TitleProperty:    schema.Title.Name,
	}

	if due, ok := wiz.pickProp("due date", schema.DateProps); ok {
		mapping.DueProperty = due.Name
	}
	if prio, ok := wiz.pickProp("priority", schema.SelectProps); ok {
		mapping.PriorityProperty = prio.Name
	}
	if status, ok := wiz.pickStatusProp(schema.StatusProps); ok {
		mapping.StatusProperty = status.Name
		mapping.StatusIsCheckbox = status.IsCheckbox
		mapping.StatusCompletedValues = status.CompletedValues
	}

	return mapping, nil
}

// pickProp selects one property from the candidates, or reports none chosen.
// Zero candidates skip the field silently; one binds without prompting.
func (wiz *Wizard) pickProp(field string, candidates []PropRef) (PropRef, bool) {
	switch len(candidates) {
	case 0:
		return PropRef{}, false
	case 1:
		fmt.Fprintf(wiz.w, "  Binding %s to property %q\n", field, candidates[0].Name)
		return candidates[0], true
	}

	options := make([]string, len(candidates))
	for i, c := range candidates {
		options[i] = c.Name
	}
	options = append(options, "(skip, do not sync this field)")

	idx, err := wiz.prompt.Select(fmt.Sprintf("Property for %s", field), options)
	if err != nil || idx == len(options)-1 {
		return PropRef{}, false
	}
	return candidates[idx], true
}

// pickStatusProp is pickProp for completion candidates, which mix status and
// checkbox properties.
func (wiz *Wizard) pickStatusProp(candidates []StatusPropRef) (StatusPropRef, bool) {
	switch len(candidates) {
	case 0:
		return StatusPropRef{}, false
	case 1:
		fmt.Fprintf(wiz.w, "  Binding completion to property %q\n", candidates[0].Name)
		return candidates[0], true
	}

	options := make([]string, len(candidates))
	for i, c := range candidates {
		kind := "status"
		if c.IsCheckbox {
			kind = "checkbox"
		}
		options[i] = fmt.Sprintf("%s (%s)", c.Name, kind)
	}
	options = append(options, "(skip, do not sync completion)")

	idx, err := wiz.prompt.Select("Property for completion", options)
	if err != nil || idx == len(options)-1 {
		return StatusPropRef{}, false
	}
	return candidates[idx], true
}

// offerDaemonInstall asks the user whether to install as a background daemon.
func (wiz *Wizard) offerDaemonInstall(_ context.Context) error {
	if !wiz.prompt.Confirm("Install as background daemon (starts on login)?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping daemon install.\n")
		fmt.Fprintf(wiz.w, "  You can run manually with: notionrelay daemon\n")
		fmt.Fprintf(wiz.w, "  Or install later with:     notionrelay setup\n\n")
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "  Installing binary to %s...\n", BinaryInstallPath())
	if err := InstallBinary(); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Binary installed\n")

	if err := WritePlist(homeDir); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ LaunchAgent plist written\n")

	if err := CreateLogDir(homeDir); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Log directory created\n")

	if err := LoadDaemon(homeDir); err != nil {
		return fmt.Errorf("loading daemon: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Daemon loaded — running now\n")

	cfgPath, _ := config.DefaultPath()
	fmt.Fprintf(wiz.w, "\nSetup complete! NotionRelay is syncing in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", cfgPath)
	fmt.Fprintf(wiz.w, "  Logs:    %s\n", LogDir(homeDir))
	fmt.Fprintf(wiz.w, "  Status:  notionrelay status\n")
	fmt.Fprintf(wiz.w, "  Remove:  notionrelay uninstall\n\n")

	return nil
}
