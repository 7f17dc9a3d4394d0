package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/jaywantadh/ChunkFlow/config"
	"github.com/jaywantadh/ChunkFlow/internal/events"
	"github.com/jaywantadh/ChunkFlow/internal/filebuffer"
	"github.com/jaywantadh/ChunkFlow/internal/metadata"
	"github.com/jaywantadh/ChunkFlow/internal/store"
	"github.com/jaywantadh/ChunkFlow/pkg/env"
	"github.com/jaywantadh/ChunkFlow/pkg/logging"
)

func main() {
	env.LoadEnv()
	config.LoadConfig(".")
	logging.InitLogger(config.Config.Debug)

	app := &cli.App{
		Name:  "ChunkFlow",
		Usage: "Dual-mode chunked file buffering for P2P transfer",
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Aliases:   []string{"i"},
				Usage:     "Feed a local file chunk-by-chunk through a write-mode buffer and save it",
				ArgsUsage: "<file>",
				Action:    ingest,
			},
			{
				Name:      "segment",
				Aliases:   []string{"s"},
				Usage:     "Segment a local file into pieces with a read-mode buffer",
				ArgsUsage: "<file>",
				Action:    segment,
			},
			{
				Name:   "list",
				Usage:  "List persistent buffer entries",
				Action: list,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func describe(path string) (filebuffer.Descriptor, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return filebuffer.Descriptor{}, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return filebuffer.Descriptor{}, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	pieceLength := config.Config.PieceLength
	pieces := int((info.Size() + pieceLength - 1) / pieceLength)
	if pieces == 0 {
		pieces = 1
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return filebuffer.Descriptor{
		Name:        filepath.Base(path),
		MimeType:    mimeType,
		Size:        info.Size(),
		Pieces:      pieces,
		PieceLength: pieceLength,
		Source:      f,
	}, f, nil
}

func ingest(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ingest <file>", 1)
	}
	cfg := config.Config

	desc, src, err := describe(c.Args().First())
	if err != nil {
		return err
	}
	defer src.Close()

	backend, err := store.NewLocal(cfg.StoragePath, cfg.QuotaBytes)
	if err != nil {
		return err
	}
	registry, err := metadata.OpenRegistry(cfg.MetadataPath)
	if err != nil {
		return err
	}
	defer registry.Close()

	fb := filebuffer.New(filebuffer.ModeWrite, desc, filebuffer.Options{
		Backend:         backend,
		Registry:        registry,
		MemoryThreshold: cfg.MemoryThreshold,
		CompressChunks:  cfg.CompressMemoryChunks,
	})

	var initErr error
	fb.On(events.Error, func(ev events.Event) {
		logging.Log.WithError(ev.Err).Error("buffer error")
		initErr = ev.Err
	})
	fb.On(events.Progress, func(ev events.Event) {
		logging.Log.Debugf("progress: %.1f%%", ev.Ratio*100)
	})
	destroyed := make(chan struct{})
	fb.Once(events.Destroy, func(events.Event) {
		close(destroyed)
	})

	fb.Init()
	if initErr != nil {
		return initErr
	}

	// Simulate chunk arrival off the wire, in final byte order.
	buf := make([]byte, desc.PieceLength)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := fb.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", desc.Name, err)
		}
	}

	sink, err := filebuffer.NewDirectorySink(cfg.DownloadPath)
	if err != nil {
		return err
	}
	if err := fb.Save(sink); err != nil {
		return err
	}
	<-destroyed

	logging.Log.Infof("✅ Ingested %s (%d bytes) into %s", desc.Name, desc.Size, cfg.DownloadPath)
	return nil
}

func segment(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: segment <file>", 1)
	}

	desc, src, err := describe(c.Args().First())
	if err != nil {
		return err
	}
	defer src.Close()

	fb := filebuffer.New(filebuffer.ModeRead, desc, filebuffer.Options{})

	var readErr error
	done := false
	pieces := 0
	fb.On(events.Error, func(ev events.Event) {
		readErr = ev.Err
	})
	fb.On(events.Data, func(ev events.Event) {
		if ev.Chunk == nil {
			done = true
			return
		}
		pieces++
		logging.Log.Infof("piece %d: %d bytes (%.1f%%)",
			pieces, len(ev.Chunk), float64(fb.BytesRead())/float64(desc.Size)*100)
	})

	fb.Init()
	for !done && readErr == nil {
		fb.Read(true)
	}
	if readErr != nil {
		return readErr
	}

	logging.Log.Infof("✅ Segmented %s into %d pieces", desc.Name, pieces)
	return nil
}

func list(c *cli.Context) error {
	registry, err := metadata.OpenRegistry(config.Config.MetadataPath)
	if err != nil {
		return err
	}
	defer registry.Close()

	entries, err := registry.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No persistent buffer entries")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %s  %d bytes\n", e.LocalName, e.FileName, e.MimeType, e.DeclaredSize)
	}
	return nil
}
