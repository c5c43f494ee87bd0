package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/models"
)

// settleDelay is how long a path must stay quiet before it is ingested, so
// a file still being written is not read half way.
const settleDelay = 500 * time.Millisecond

var errNoWatchFolders = errors.New("no directories given and no active watch folders registered")

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		flags     ingestFlags
		recursive bool
		scan      bool
	)
	cmd := &cobra.Command{
		Use:   "watch [dir]...",
		Short: "Ingest files as they appear in watched directories",
		Long:  "Watches the given directories, or every active registered watch folder in priority order when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			roots, err := resolveRoots(ctx, a.DBClient, args, recursive)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w, err := newFolderWatcher(a.Coordinator, flags.options(), out, opts.log)
			if err != nil {
				return err
			}
			defer w.Close()

			var paths []string
			for _, root := range roots {
				if err := w.Add(root); err != nil {
					return err
				}
				paths = append(paths, root.path)
			}
			if scan {
				if err := w.Scan(); err != nil {
					return err
				}
			}
			headColor.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", strings.Join(paths, ", "))
			return w.Run(ctx)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also watch subdirectories of the given directories")
	cmd.Flags().BoolVar(&scan, "scan", false, "Ingest existing files before watching")
	return cmd
}

// watchRoot is one watched tree. An empty types set accepts every
// supported extension.
type watchRoot struct {
	path      string
	recursive bool
	types     map[string]bool
}

// resolveRoots turns the command arguments into roots, or loads the active
// registered folders when there are none.
func resolveRoots(ctx context.Context, store core.WatchFolderStore, args []string, recursive bool) ([]watchRoot, error) {
	if len(args) > 0 {
		roots := make([]watchRoot, 0, len(args))
		for _, dir := range args {
			roots = append(roots, watchRoot{path: dir, recursive: recursive})
		}
		return roots, nil
	}

	folders, err := store.ListWatchFolders(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, errNoWatchFolders
	}
	return rootsFromFolders(folders), nil
}

// rootsFromFolders keeps the order of folders, which the store returns
// highest priority first.
func rootsFromFolders(folders []models.WatchFolder) []watchRoot {
	roots := make([]watchRoot, 0, len(folders))
	for _, f := range folders {
		root := watchRoot{path: f.FolderPath, recursive: f.Recursive}
		if len(f.FileTypes) > 0 {
			root.types = make(map[string]bool, len(f.FileTypes))
			for _, t := range f.FileTypes {
				root.types[strings.ToLower(t)] = true
			}
		}
		roots = append(roots, root)
	}
	return roots
}

// fileIngester is the part of the coordinator the watcher needs.
type fileIngester interface {
	IngestFile(ctx context.Context, path string, opts ingestion_engine.IngestOptions) (*ingestion_engine.IngestResult, error)
	Processor() *ingestion_engine.DocumentProcessor
}

type pendingFile struct {
	seen time.Time
	rank int
}

// folderWatcher ingests created or written files one at a time once they
// have settled. Files under earlier roots are ingested first.
type folderWatcher struct {
	fw      *fsnotify.Watcher
	ingest  fileIngester
	opts    ingestion_engine.IngestOptions
	out     io.Writer
	log     *logrus.Logger
	roots   []watchRoot
	pending map[string]pendingFile
	now     func() time.Time
}

func newFolderWatcher(ingest fileIngester, opts ingestion_engine.IngestOptions, out io.Writer, log *logrus.Logger) (*folderWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &folderWatcher{
		fw:      fw,
		ingest:  ingest,
		opts:    opts,
		out:     out,
		log:     log,
		pending: make(map[string]pendingFile),
		now:     time.Now,
	}, nil
}

func (w *folderWatcher) Add(root watchRoot) error {
	abs, err := filepath.Abs(root.path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root.path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", abs)
	}
	root.path = abs
	w.roots = append(w.roots, root)

	if err := w.watchTree(abs, root.recursive); err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{"dir": abs, "recursive": root.recursive}).Info("watching directory")
	return nil
}

func (w *folderWatcher) watchTree(dir string, recursive bool) error {
	if !recursive {
		if err := w.fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Scan queues every existing file the roots accept, ready for the next flush.
func (w *folderWatcher) Scan() error {
	for _, root := range w.roots {
		if err := w.scanTree(root.path, root.recursive); err != nil {
			return err
		}
	}
	return nil
}

func (w *folderWatcher) scanTree(dir string, recursive bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || isHidden(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isHidden(path) {
			return nil
		}
		if rank, ok := w.match(path); ok {
			w.pending[path] = pendingFile{rank: rank}
		}
		return nil
	})
}

func (w *folderWatcher) Close() error {
	return w.fw.Close()
}

// Run processes events until ctx is done.
func (w *folderWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// handle queues relevant files and follows directories created under a
// recursive root.
func (w *folderWatcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && !isHidden(ev.Name) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.underRecursiveRoot(ev.Name) {
				if err := w.watchTree(ev.Name, true); err != nil {
					w.log.WithError(err).Warn("watch new directory")
					return
				}
				if err := w.scanTree(ev.Name, true); err != nil {
					w.log.WithError(err).Warn("scan new directory")
				}
			}
			return
		}
	}
	if path, rank, ok := w.relevant(ev); ok {
		w.pending[path] = pendingFile{seen: w.now(), rank: rank}
	}
}

// relevant reports whether ev is a create or write of a visible regular
// file that one of the roots accepts, and the rank of that root.
func (w *folderWatcher) relevant(ev fsnotify.Event) (string, int, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", 0, false
	}
	if isHidden(ev.Name) {
		return "", 0, false
	}
	rank, ok := w.match(ev.Name)
	if !ok {
		return "", 0, false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", 0, false
	}
	return ev.Name, rank, true
}

// match returns the index of the first root that contains path and accepts
// its extension.
func (w *folderWatcher) match(path string) (int, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if !w.ingest.Processor().IsSupported(ext) {
		return 0, false
	}
	dir := filepath.Dir(path)
	for i, root := range w.roots {
		if !contains(root, dir) {
			continue
		}
		if len(root.types) > 0 && !root.types[ext] {
			continue
		}
		return i, true
	}
	return 0, false
}

func (w *folderWatcher) underRecursiveRoot(dir string) bool {
	parent := filepath.Dir(dir)
	for _, root := range w.roots {
		if root.recursive && contains(root, parent) {
			return true
		}
	}
	return false
}

// contains reports whether files directly in dir belong to root.
func contains(root watchRoot, dir string) bool {
	rel, err := filepath.Rel(root.path, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return root.recursive && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// flush ingests every pending path that has been quiet for settleDelay,
// highest-priority root first.
func (w *folderWatcher) flush(ctx context.Context) {
	var ready []string
	cutoff := w.now().Add(-settleDelay)
	for path, p := range w.pending {
		if !p.seen.After(cutoff) {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ri, rj := w.pending[ready[i]].rank, w.pending[ready[j]].rank
		if ri != rj {
			return ri < rj
		}
		return ready[i] < ready[j]
	})

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, path)
		res, err := w.ingest.IngestFile(ctx, path, w.opts)
		printOutcome(w.out, path, res, err)
	}
}
