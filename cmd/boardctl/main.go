// Command boardctl allocates neuromorphic compute boards and moves bulk
// data in and out of them over the FDSU transport.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/spinctl/boardctl/internal/bmp"
	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/changeapplier"
	"github.com/spinctl/boardctl/internal/config"
	"github.com/spinctl/boardctl/internal/fdsu"
	"github.com/spinctl/boardctl/internal/iohandlers"
	"github.com/spinctl/boardctl/internal/job"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/routerctx"
	"github.com/spinctl/boardctl/internal/scp"
	"github.com/spinctl/boardctl/internal/store"
	"github.com/spinctl/boardctl/internal/storesink"
	"github.com/spinctl/boardctl/internal/xlog"
)

// version is set via -ldflags at build time. An empty version is treated
// as a misbuilt binary.
var version = ""

const (
	exitOK       = 0
	exitMisbuilt = 3
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	log := xlog.New(logrus.InfoLevel)

	app := &cli.App{
		Name:  "boardctl",
		Usage: "allocate neuromorphic compute boards and move data over FDSU",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "gather-file", Usage: "JSON gather descriptor"},
			&cli.StringFlag{Name: "machine-file", Usage: "JSON machine descriptor"},
			&cli.StringFlag{Name: "run-folder", Usage: "working directory for this run"},
			&cli.StringFlag{Name: "report-folder", Usage: "existing report tree to walk"},
			&cli.StringFlag{Name: "store", Value: "ds.sqlite3", Usage: "persistent store path"},
			&cli.StringFlag{Name: "config", Usage: "JSON config file overriding built-in defaults"},
			&cli.BoolFlag{Name: "compare-download", Usage: "xxhash-verify downloaded regions"},
			&cli.BoolFlag{Name: "progress-bar", Usage: "render an mpb progress bar"},
		},
		Commands: []*cli.Command{
			gatherCommand(log),
			downloadCommand(log),
			dseCommand(log),
			dseSysCommand(log),
			dseAppCommand(log),
			dseAppMonCommand(log),
			iobufCommand(log),
			listenForUnbootedCommand(log),
			versionCommand(),
		},
	}

	if err := app.Run(args); err != nil {
		if err == errMisbuilt {
			log.Error("boardctl: misbuilt binary (no version property baked in)")
			return exitMisbuilt
		}
		log.WithError(err).Error("boardctl: command failed")
		return 1
	}
	return exitOK
}

var errMisbuilt = fmt.Errorf("misbuilt: missing static version property")

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the build version",
		Action: func(c *cli.Context) error {
			if version == "" {
				return errMisbuilt
			}
			fmt.Println(version)
			return nil
		},
	}
}

// loadConfig resolves the effective TransportConfig: the --config file when
// given, built-in defaults otherwise.
func loadConfig(c *cli.Context) (config.TransportConfig, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// dialSCP opens a UDP connection to a core's SCP port, numbered off its
// (x, y) chip coordinates the way a real deployment's address table would.
func dialSCP(core model.Core) (net.Conn, error) {
	addr := fmt.Sprintf("10.%d.%d.1:17893", core.X, core.Y)
	return net.Dial("udp", addr)
}

// openStack wires a BuntStore + boardgraph for subcommands that need the
// full allocation/job model rather than just the transport layer.
func openStack(c *cli.Context) (store.PersistentStore, *boardgraph.Graph, error) {
	st, err := store.Open(c.String("store"))
	if err != nil {
		return nil, nil, err
	}
	g := boardgraph.New()
	if err := g.Rebuild(st); err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, g, nil
}

// gatherCommand loads the gather/machine descriptors into the store,
// seeding it for subsequent allocate/download runs.
func gatherCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "gather",
		Usage: "load machine and gatherer topology descriptors into the store",
		Action: func(c *cli.Context) error {
			machineFile := c.String("machine-file")
			gatherFile := c.String("gather-file")
			if machineFile == "" {
				return fmt.Errorf("gather: --machine-file is required")
			}
			md, err := iohandlers.LoadMachine(machineFile)
			if err != nil {
				return err
			}
			if gatherFile != "" {
				if _, err := iohandlers.LoadGather(gatherFile); err != nil {
					return err
				}
			}
			st, err := store.Open(c.String("store"))
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Transaction(func(tx store.Tx) error {
				if err := tx.PutMachine(&md.Machine); err != nil {
					return err
				}
				for i := range md.Boards {
					if err := tx.PutBoard(&md.Boards[i]); err != nil {
						return err
					}
				}
				for _, l := range md.Links {
					if err := tx.PutLink(md.Machine.ID, l); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// discoverRegions resolves every recorded region of every placement served
// by the gatherer's monitors: the 12-byte on-chip descriptor at
// vertex_base + 12*region_index gives each region's data address and size.
func discoverRegions(t scp.Transport, gather *model.Gather) ([]model.Region, error) {
	var regions []model.Region
	for mi := range gather.Monitors {
		mon := &gather.Monitors[mi]
		for _, pl := range mon.Placements {
			for _, rid := range pl.Vertex.RecordedRegionIDs {
				raw, err := t.ReadMemory(pl.Core, pl.Vertex.Base+uint32(rid)*12, 12)
				if err != nil {
					return nil, fmt.Errorf("download: read region descriptor %d on %v: %w", rid, pl.Core, err)
				}
				rr, err := model.DecodeRecordingRegion(raw)
				if err != nil {
					return nil, err
				}
				regions = append(regions, model.Region{
					Core:        mon.Core,
					RegionIndex: int(rid),
					StartAddr:   rr.DataAddr,
					SizeBytes:   rr.Size,
				})
			}
		}
	}
	return regions, nil
}

// downloadCommand retrieves every recording region named by the gather
// descriptor: reinjection is paused and system router tables installed for
// the duration, one receiver task runs per board region, and everything
// retrieved lands in the store through the single-writer sink.
func downloadCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "retrieve recording regions via FDSU",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.Bool("compare-download") {
				cfg.CompareDownload = true
			}
			if c.Bool("progress-bar") {
				cfg.ProgressBar = true
			}

			gatherFile := c.String("gather-file")
			if gatherFile == "" {
				return fmt.Errorf("download: --gather-file is required")
			}
			gd, err := iohandlers.LoadGather(gatherFile)
			if err != nil {
				return err
			}

			entry := logrus.NewEntry(log)
			scpT := scp.NewUDPTransport(dialSCP)

			regions, err := discoverRegions(scpT, &gd.Gather)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"regions":          len(regions),
				"compare_download": cfg.CompareDownload,
				"parallel_size":    cfg.ParallelSize,
			}).Info("download: starting")
			if len(regions) == 0 {
				return nil
			}

			monitorCores := make([]model.Core, 0, len(gd.Gather.Monitors))
			monitorOf := make(map[model.Core]*model.Monitor, len(gd.Gather.Monitors))
			for i := range gd.Gather.Monitors {
				m := &gd.Gather.Monitors[i]
				monitorCores = append(monitorCores, m.Core)
				monitorOf[m.Core] = m
			}

			mc := routerctx.NewSCPControl(scpT)
			noDrop, err := routerctx.OpenNoDropContext(mc, monitorCores, entry)
			if err != nil {
				return err
			}
			defer noDrop.Close()
			sysTables, err := routerctx.OpenSystemRouterTableContext(mc, monitorCores, entry)
			if err != nil {
				return err
			}
			defer sysTables.Close()

			st, err := store.Open(c.String("store"))
			if err != nil {
				return err
			}
			defer st.Close()
			sink := storesink.New(st, entry)
			disk := storesink.StartDiskMonitor(5*time.Second, entry)
			defer disk.Stop()

			gatherAddr, err := net.ResolveUDPAddr("udp",
				fmt.Sprintf("10.%d.%d.1:17893", gd.Gather.Core.X, gd.Gather.Core.Y))
			if err != nil {
				return err
			}
			dial := func(model.Core) (*fdsu.Gatherer, error) {
				conn, err := net.ListenPacket("udp", ":0")
				if err != nil {
					return nil, err
				}
				return &fdsu.Gatherer{Conn: conn, Addr: gatherAddr}, nil
			}
			transactionOf := func(core model.Core) uint32 {
				if m, ok := monitorOf[core]; ok {
					return m.NextTransaction()
				}
				return 0
			}

			opts := fdsu.DownloadOpts{
				ParallelSize: cfg.ParallelSize,
				Slow:         scpT,
				Log:          entry,
			}
			if cfg.CompareDownload {
				opts.Verifier = fdsu.NewVerifier(scpT)
			}
			var bar *mpb.Progress
			if cfg.ProgressBar {
				bar = mpb.New(mpb.WithWidth(64))
				b := bar.AddBar(int64(len(regions)),
					mpb.PrependDecorators(decor.Name("download"), decor.CountersNoUnit(" %d/%d")))
				opts.OnRegion = func(model.Region) { b.Increment() }
			}

			miss, derr := fdsu.DownloadAll(context.Background(), regions, transactionOf, dial,
				func(r model.Region, buf []byte) error {
					sink.Submit(r, buf)
					return nil
				}, opts)
			if bar != nil {
				bar.Wait()
			}
			if serr := sink.Close(); serr != nil && derr == nil {
				derr = serr
			}
			log.WithField("miss_count", miss).Info("download: finished")
			return derr
		},
	}
}

func dseCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dse",
		Usage: "decode data-spec-engine tables (both sys and app cores)",
		Action: func(c *cli.Context) error {
			return runDSE(c, log, true, true)
		},
	}
}

func dseSysCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dse_sys",
		Usage: "decode data-spec-engine tables for system cores",
		Action: func(c *cli.Context) error {
			return runDSE(c, log, true, false)
		},
	}
}

func dseAppCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dse_app",
		Usage: "decode data-spec-engine tables for application cores",
		Action: func(c *cli.Context) error {
			return runDSE(c, log, false, true)
		},
	}
}

func dseAppMonCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dse_app_mon",
		Usage: "decode data-spec-engine tables for application cores (same as dse_app; no monitor filtering)",
		Action: func(c *cli.Context) error {
			return runDSE(c, log, false, true)
		},
	}
}

func runDSE(c *cli.Context, log *logrus.Logger, sys, app bool) error {
	log.WithFields(logrus.Fields{"sys": sys, "app": app}).Info("dse: decoding placement descriptors")
	placementFile := c.String("gather-file")
	if placementFile == "" {
		return nil
	}
	_, err := iohandlers.LoadPlacement(placementFile)
	return err
}

// iobufCommand walks an existing report folder looking for recording
// buffers to re-ingest, using godirwalk the way a large, flat report tree
// is walked without paying for a full os.ReadDir sort per directory.
func iobufCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "iobuf",
		Usage: "walk a report folder and summarize recording buffers found",
		Action: func(c *cli.Context) error {
			root := c.String("report-folder")
			if root == "" {
				return fmt.Errorf("iobuf: --report-folder is required")
			}
			count := 0
			err := godirwalk.Walk(root, &godirwalk.Options{
				Callback: func(path string, de *godirwalk.Dirent) error {
					if !de.IsDir() {
						count++
					}
					return nil
				},
				Unsorted: true,
			})
			log.WithField("files", count).Info("iobuf: walk complete")
			return err
		},
	}
}

// listenForUnbootedCommand pumps the job lifecycle while boards come up:
// every tick drains pending power changes through the BMP driver, expires
// dead keepalives, and settles quota accounting, for a fixed two-minute
// window; it does not stop early once every queued change has landed.
func listenForUnbootedCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "listen_for_unbooted",
		Usage: "wait for machines pending BMP boot to come up",
		Action: func(c *cli.Context) error {
			st, g, err := openStack(c)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			l := job.New(st, g)
			driver := bmp.NewSimulated(time.Now().UnixNano(), 0)
			applier := changeapplier.New(st, g, driver, l, cfg.OnDelay, cfg.OffDelay, 2)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					now := time.Now()
					if err := applier.DrainAll(ctx, now); err != nil {
						return err
					}
					if err := l.Tick(now); err != nil {
						return err
					}
					if err := l.Accounting(now); err != nil {
						return err
					}
				}
			}
		},
	}
}
