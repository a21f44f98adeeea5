// juicebot-admin inspects and edits the script store of a juicebot server
// directly, without going through the room. Running scripts are not affected
// until they are restarted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rodaine/table"
	"github.com/zond/juicebot/server"
	"github.com/zond/juicebot/storage"
)

func main() {
	dir := flag.String("dir", server.DefaultConfig().Dir, "Where the server saves its databases.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  list                   List stored scripts\n")
		fmt.Fprintf(os.Stderr, "  show <name>            Print the code of a script\n")
		fmt.Fprintf(os.Stderr, "  import <name> [file]   Store a script from file, or stdin if no file\n")
		fmt.Fprintf(os.Stderr, "  export <name> <file>   Write the code of a script to file\n")
		fmt.Fprintf(os.Stderr, "  delete <name>          Delete a script\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, filepath.Join(*dir, "scripts.sqlite"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(ctx, store, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		store.Close()
		os.Exit(1)
	}
}

func need(args []string, n int) error {
	if len(args) < n+1 {
		return fmt.Errorf("%s needs %d argument(s)", args[0], n)
	}
	return nil
}

func run(ctx context.Context, store *storage.Storage, args []string) error {
	switch args[0] {
	case "list":
		return list(ctx, store, os.Stdout)
	case "show":
		if err := need(args, 1); err != nil {
			return err
		}
		script, err := store.Fetch(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(script.Code)
	case "import":
		if err := need(args, 1); err != nil {
			return err
		}
		var src io.Reader = os.Stdin
		if len(args) > 2 {
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}
		code, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		created, err := store.Upsert(ctx, args[1], string(code))
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %q\n", args[1])
		} else {
			fmt.Printf("Updated %q\n", args[1])
		}
	case "export":
		if err := need(args, 2); err != nil {
			return err
		}
		script, err := store.Fetch(ctx, args[1])
		if err != nil {
			return err
		}
		return os.WriteFile(args[2], []byte(script.Code), 0644)
	case "delete":
		if err := need(args, 1); err != nil {
			return err
		}
		if err := store.Delete(ctx, args[1]); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no script named %q", args[1])
		} else if err != nil {
			return err
		}
		fmt.Printf("Deleted %q\n", args[1])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return nil
}

func list(ctx context.Context, store *storage.Storage, w io.Writer) error {
	scripts, err := store.All(ctx)
	if err != nil {
		return err
	}
	t := table.New("Name", "Size", "Created", "Updated").WithWriter(w)
	for _, script := range scripts {
		updated := "never"
		if at := script.UpdatedAt(); !at.IsZero() {
			updated = humanize.Time(at)
		}
		t.AddRow(script.Name, humanize.Bytes(uint64(len(script.Code))), humanize.Time(script.CreatedAt()), updated)
	}
	t.Print()
	return nil
}
