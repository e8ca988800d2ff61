package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/chmdznr/oldmaps/internal/config"
	"github.com/chmdznr/oldmaps/pkg/version"
	"github.com/urfave/cli/v2"
)

var cfg config.Config

func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project name",
		Required: true,
	}
}

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "oldmaps",
		Usage:                "Turn scanned map rasters into a published web map",
		Version:              version.Version,
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config file (default: ./oldmaps.yaml when present)",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Print(version.Info())
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a new project",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Project name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Directory holding the scanned rasters",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "resized-dir",
						Usage: "Output directory for resized rasters (default: <name>/resized)",
					},
					&cli.StringFlag{
						Name:  "encoded-dir",
						Usage: "Output directory for re-encoded rasters (default: <name>/encoded)",
					},
					&cli.StringFlag{
						Name:  "georef-dir",
						Usage: "Directory the GIS writes georeferenced rasters to (default: <name>/georef)",
					},
					&cli.StringFlag{
						Name:  "tile-dir",
						Usage: "Output directory for tile pyramids (default: <name>/tiles)",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "MinIO endpoint",
					},
					&cli.StringFlag{
						Name:  "bucket",
						Usage: "MinIO bucket name",
					},
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Destination folder path",
					},
					&cli.StringFlag{
						Name:    "access-key",
						Usage:   "MinIO access key",
						EnvVars: []string{"OLDMAPS_ACCESS_KEY"},
					},
					&cli.StringFlag{
						Name:    "secret-key",
						Usage:   "MinIO secret key",
						EnvVars: []string{"OLDMAPS_SECRET_KEY"},
					},
					&cli.BoolFlag{
						Name:  "secure",
						Usage: "Use HTTPS for the MinIO endpoint",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "public-url",
						Usage: "Base URL the bucket is served from (default: derived from endpoint and bucket)",
					},
				},
				Action: createProject,
			},
			{
				Name:  "scan",
				Usage: "Inventory the source directory",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Case-insensitive file name pattern (default from config)",
					},
				},
				Action: scanSource,
			},
			{
				Name:  "resize",
				Usage: "Resize every inventoried raster",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:  "max-dim",
						Usage: "Maximum width and height in pixels (default from config)",
					},
					&cli.StringFlag{
						Name:  "delegate",
						Usage: "Image delegate: magick or native (default from config)",
					},
					&cli.BoolFlag{
						Name:  "reuse",
						Usage: "Keep existing outputs that are newer than their source",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
				},
				Action: resizeFiles,
			},
			{
				Name:  "reencode",
				Usage: "Re-encode every inventoried raster",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Target format: jpeg, png or tiff (default from config)",
					},
					&cli.IntFlag{
						Name:  "quality",
						Usage: "Quality from 0 to 100 (default from config)",
					},
					&cli.StringFlag{
						Name:  "delegate",
						Usage: "Image delegate: magick or native (default from config)",
					},
					&cli.BoolFlag{
						Name:  "reuse",
						Usage: "Keep existing outputs that are newer than their source",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
				},
				Action: reencodeFiles,
			},
			{
				Name:  "report",
				Usage: "Show compression statistics",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "xlsx",
						Usage: "Also write the inventory and report to an Excel file",
					},
				},
				Action: showReport,
			},
			{
				Name:  "verify",
				Usage: "Check resized outputs against their originals",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Case-insensitive file name pattern (default from config)",
					},
				},
				Action: verifyOutputs,
			},
			{
				Name:  "boundaries",
				Usage: "Download boundary polygons from OpenStreetMap as GeoJSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "bbox",
						Usage: "Bounding box as minlon,minlat,maxlon,maxlat",
					},
					&cli.StringFlag{
						Name:  "place",
						Usage: "Search inside the area with this name instead of a bounding box",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Regular expression matched against feature names",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Only features carrying this tag key (default from config)",
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output GeoJSON file",
						Required: true,
					},
				},
				Action: fetchBoundaries,
			},
			{
				Name:  "georef",
				Usage: "Wait for georeferencing in the desktop GIS and list its output",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "List georeferenced rasters without waiting",
					},
				},
				Action: collectGeoreferenced,
			},
			{
				Name:  "tile",
				Usage: "Generate tile pyramids for georeferenced rasters",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:  "min-zoom",
						Usage: "Lowest zoom level (default from config)",
					},
					&cli.IntFlag{
						Name:  "max-zoom",
						Usage: "Highest zoom level (default from config)",
					},
					&cli.StringFlag{
						Name:  "resampling",
						Usage: "gdal2tiles resampling method (default from config)",
					},
					&cli.IntFlag{
						Name:  "processes",
						Usage: "Parallel gdal2tiles processes (default from config)",
					},
					&cli.StringFlag{
						Name:  "bbox",
						Usage: "Area covered, minlon,minlat,maxlon,maxlat, to compare expected and produced tiles",
					},
				},
				Action: generateTiles,
			},
			{
				Name:  "publish",
				Usage: "Upload tile pyramids to MinIO",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel workers for uploading files (default from config)",
					},
					&cli.IntFlag{
						Name:  "batch",
						Usage: "Batch size for status updates (default from config)",
					},
					&cli.BoolFlag{
						Name:  "no-bucket-setup",
						Usage: "Do not create the bucket or change its policy",
					},
				},
				Action: publishTiles,
			},
			{
				Name:  "webmap",
				Usage: "Write a Leaflet page for a published tile layer",
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "layer",
						Usage: "Tile layer (sub-directory of the tile dir); required when there are several",
					},
					&cli.StringFlag{
						Name:  "tile-url",
						Usage: "Tile URL template with {z}, {x} and {y} (default: derived from the destination)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Page title (default: project name)",
					},
					&cli.StringSliceFlag{
						Name:  "overlay",
						Usage: "GeoJSON file drawn over the tiles (repeatable)",
					},
					&cli.StringFlag{
						Name:  "bbox",
						Usage: "Initial view as minlon,minlat,maxlon,maxlat",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory (default: the tile dir, so the page is published with the tiles)",
					},
				},
				Action: writeWebmap,
			},
			{
				Name:  "status",
				Usage: "Show project status",
				Flags: []cli.Flag{
					projectFlag(),
				},
				Action: showStatus,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}
