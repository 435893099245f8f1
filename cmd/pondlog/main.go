package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/celerix-dev/celerix-pond/internal/backup"
	"github.com/celerix-dev/celerix-pond/internal/config"
	"github.com/celerix-dev/celerix-pond/internal/interaction"
	"github.com/celerix-dev/celerix-pond/internal/report"
	"github.com/celerix-dev/celerix-pond/pkg/engine"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := sdk.New(cfg.StoreOptions())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer sdk.Close(store)

	if err := run(os.Stdout, store, cfg, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stdout)
			sdk.Close(store)
			os.Exit(2)
		}
		sdk.Close(store)
		log.Fatal(err)
	}
}

func run(out io.Writer, store sdk.CelerixStore, cfg *config.Config, argv []string) error {
	command := strings.ToUpper(argv[0])
	args := argv[1:]

	need := func(n int, usage string) error {
		if len(args) < n {
			return fmt.Errorf("%w: pondlog %s", errUsage, usage)
		}
		return nil
	}

	switch command {
	case "GET":
		if err := need(3, "GET <personaID> <appID> <key>"); err != nil {
			return err
		}
		val, err := store.Get(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printJSON(out, val)

	case "SET":
		if err := need(4, "SET <personaID> <appID> <key> <value>"); err != nil {
			return err
		}
		var val any
		if err := json.Unmarshal([]byte(args[3]), &val); err != nil {
			// If not valid JSON, treat as string
			val = args[3]
		}
		if err := store.Set(args[0], args[1], args[2], val); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")

	case "DEL":
		if err := need(3, "DEL <personaID> <appID> <key>"); err != nil {
			return err
		}
		if err := store.Delete(args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")

	case "LIST_PERSONAS":
		list, err := store.GetPersonas()
		if err != nil {
			return err
		}
		return printJSON(out, list)

	case "LIST_APPS":
		if err := need(1, "LIST_APPS <personaID>"); err != nil {
			return err
		}
		list, err := store.GetApps(args[0])
		if err != nil {
			return err
		}
		return printJSON(out, list)

	case "DUMP":
		if err := need(2, "DUMP <personaID> <appID>"); err != nil {
			return err
		}
		data, err := store.GetAppStore(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(out, data)

	case "RECORD":
		if err := need(3, "RECORD <learner> <action> <level> [workspace]"); err != nil {
			return err
		}
		l, err := openLog(store, cfg, args[0])
		if err != nil {
			return err
		}
		if len(args) > 3 {
			err = l.RecordWorkspaceAction(args[1], args[3], args[2])
		} else {
			err = l.RecordAction(args[1], args[2])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "OK %d\n", l.Next()-1)

	case "LIST":
		if err := need(1, "LIST <learner>"); err != nil {
			return err
		}
		l, err := openLog(store, cfg, args[0])
		if err != nil {
			return err
		}
		e, err := l.Enumerate()
		if err != nil {
			return err
		}
		return report.JSON(out, e)

	case "REPORT":
		if err := need(1, "REPORT <learner>"); err != nil {
			return err
		}
		l, err := openLog(store, cfg, args[0])
		if err != nil {
			return err
		}
		e, err := l.Enumerate()
		if err != nil {
			return err
		}
		return report.HTML(out, "", e)

	case "CLEAR":
		if err := need(1, "CLEAR <learner>"); err != nil {
			return err
		}
		l, err := openLog(store, cfg, args[0])
		if err != nil {
			return err
		}
		if err := l.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(out, "OK")

	case "MIGRATE":
		if err := need(1, "MIGRATE <daemonAddr>"); err != nil {
			return err
		}
		dst, err := sdk.Connect(args[0], cfg.UseTLS())
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", args[0], err)
		}
		defer dst.Close()
		n, err := engine.Migrate(store, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Migrated %d keys to %s\n", n, args[0])

	case "BACKUP":
		res, err := backup.New(store, backup.Options{
			Dir:     cfg.BackupDir,
			Backend: cfg.Storage,
			Keep:    cfg.BackupKeep,
		}).RunOnce()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Backup written to %s (%d keys)\n", res.Path, res.Keys)

	case "PING":
		if c, ok := store.(*sdk.Client); ok {
			if err := c.Ping(); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, "PONG")

	default:
		return fmt.Errorf("%w: unknown command %s", errUsage, command)
	}
	return nil
}

// openLog opens a learner's interaction log and fails if it is not usable.
func openLog(store sdk.CelerixStore, cfg *config.Config, learner string) (*interaction.Log, error) {
	opts := []interaction.Option{interaction.WithNotifier(interaction.LogNotifier)}
	if key := cfg.MasterKey(); key != nil {
		opts = append(opts, interaction.WithVault(key))
	}
	l := interaction.New(sdk.Scope(store, learner, cfg.AppID), opts...)
	if !l.Available() {
		return nil, interaction.ErrStorageUnavailable
	}
	return l, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pondlog - Interface for the pond interaction log")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  pondlog RECORD <learner> <action> <level> [workspace]")
	fmt.Fprintln(w, "  pondlog LIST <learner>")
	fmt.Fprintln(w, "  pondlog REPORT <learner>")
	fmt.Fprintln(w, "  pondlog CLEAR <learner>")
	fmt.Fprintln(w, "  pondlog GET <personaID> <appID> <key>")
	fmt.Fprintln(w, "  pondlog SET <personaID> <appID> <key> <value>")
	fmt.Fprintln(w, "  pondlog DEL <personaID> <appID> <key>")
	fmt.Fprintln(w, "  pondlog LIST_PERSONAS")
	fmt.Fprintln(w, "  pondlog LIST_APPS <personaID>")
	fmt.Fprintln(w, "  pondlog DUMP <personaID> <appID>")
	fmt.Fprintln(w, "  pondlog MIGRATE <daemonAddr>")
	fmt.Fprintln(w, "  pondlog BACKUP")
	fmt.Fprintln(w, "  pondlog PING")
	fmt.Fprintln(w, "\nEnvironment Variables:")
	fmt.Fprintln(w, "  POND_STORE_ADDR    Address of the daemon (default: embedded store in POND_DATA_DIR)")
	fmt.Fprintln(w, "  POND_DISABLE_TLS   Set to true to disable TLS")
	fmt.Fprintln(w, "  POND_VAULT_KEY     Passphrase for encrypted records")
}

func printJSON(w io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(w, v)
		return nil
	}
	fmt.Fprintln(w, string(bytes))
	return nil
}
