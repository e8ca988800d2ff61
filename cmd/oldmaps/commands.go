package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chmdznr/oldmaps/internal/db"
	"github.com/chmdznr/oldmaps/internal/export"
	"github.com/chmdznr/oldmaps/internal/geodata"
	"github.com/chmdznr/oldmaps/internal/imaging"
	"github.com/chmdznr/oldmaps/internal/inventory"
	"github.com/chmdznr/oldmaps/internal/pipeline"
	"github.com/chmdznr/oldmaps/internal/publish"
	"github.com/chmdznr/oldmaps/internal/tiling"
	"github.com/chmdznr/oldmaps/internal/webmap"
	"github.com/chmdznr/oldmaps/pkg/models"
	"github.com/chmdznr/oldmaps/pkg/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/urfave/cli/v2"
)

func stringOr(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return fallback
}

func intOr(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fallback
}

func openProject(c *cli.Context) (*db.DB, *models.Project, error) {
	projectName := c.String("project")

	database, err := db.New(projectName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	project, err := database.GetProject(projectName)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to get project: %w", err)
	}
	return database, project, nil
}

func finishRun(database *db.DB, id string, files, failures int) {
	if err := database.FinishRun(id, files, failures); err != nil {
		log.Printf("Failed to record run %s: %v", id, err)
	}
}

func createProject(c *cli.Context) error {
	projectName := c.String("name")

	database, err := db.New(projectName)
	if err != nil {
		return err
	}
	defer database.Close()

	folder := strings.Trim(c.String("folder"), "/")
	if folder != "" {
		folder = folder + "/"
	}

	dirOr := func(flag, sub string) string {
		if v := c.String(flag); v != "" {
			return v
		}
		return filepath.Join(projectName, sub)
	}

	project := &models.Project{
		Name:       projectName,
		SourcePath: c.String("source"),
		ResizedDir: dirOr("resized-dir", "resized"),
		EncodedDir: dirOr("encoded-dir", "encoded"),
		GeorefDir:  dirOr("georef-dir", "georef"),
		TileDir:    dirOr("tile-dir", "tiles"),
	}
	project.Destination.Endpoint = c.String("endpoint")
	project.Destination.Bucket = c.String("bucket")
	project.Destination.Folder = folder
	project.Destination.AccessKey = c.String("access-key")
	project.Destination.SecretKey = c.String("secret-key")
	project.Destination.Secure = c.Bool("secure")
	project.Destination.PublicURL = strings.TrimSuffix(c.String("public-url"), "/")

	if err := database.CreateProject(project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	fmt.Printf("Project '%s' created successfully\n", projectName)
	return nil
}

func scanSource(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	runID, err := database.StartRun(project.Name, "scan")
	if err != nil {
		return err
	}

	records, err := inventory.Scan(project.SourcePath, stringOr(c, "pattern", cfg.Imaging.Pattern))
	if err != nil {
		finishRun(database, runID, 0, 1)
		return err
	}
	if err := database.ReplaceInventory(project.Name, records); err != nil {
		finishRun(database, runID, 0, 1)
		return fmt.Errorf("failed to store inventory: %w", err)
	}
	finishRun(database, runID, len(records), 0)

	stored, err := database.GetFileRecords(project.Name)
	if err != nil {
		return err
	}
	printInventory(stored)
	return nil
}

func derivativeCell(d models.Derivative) string {
	switch {
	case d.Populated():
		return utils.FormatMB(d.SizeMB())
	case d.Status == models.StageFailed:
		return "failed"
	default:
		return "-"
	}
}

func printInventory(records []models.FileRecord) {
	var total int64
	fmt.Printf("%-48s %12s %12s %12s\n", "File", "Original", "Resized", "Re-encoded")
	for _, r := range records {
		total += r.Size
		fmt.Printf("%-48s %12s %12s %12s\n",
			filepath.Base(r.Path), utils.FormatMB(r.SizeMB()), derivativeCell(r.Resized), derivativeCell(r.Reencoded))
	}
	fmt.Printf("\n%d files, %s (%s)\n", len(records), utils.FormatMB(utils.BytesToMB(total)), utils.FormatSize(total))
}

func newDelegate(name string) (imaging.Delegate, error) {
	switch name {
	case "native":
		n := imaging.NewNative()
		if cfg.Imaging.ResizeQuality > 0 {
			n.ResizeQuality = cfg.Imaging.ResizeQuality
		}
		return n, nil
	case "magick", "":
		return imaging.NewMagick(cfg.Imaging.MagickBinary), nil
	}
	return nil, fmt.Errorf("unknown delegate %q: want magick or native", name)
}

type stageRunner func(ctx context.Context, project *models.Project, records []models.FileRecord) ([]models.FileRecord, error)

// runStage applies a pipeline stage to the stored inventory and persists the
// resulting derivatives, including the failed ones.
func runStage(c *cli.Context, stage string, run stageRunner) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := database.GetFileRecords(project.Name)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("no files inventoried; run scan first")
	}

	runID, err := database.StartRun(project.Name, stage)
	if err != nil {
		return err
	}

	start := time.Now()
	out, stageErr := run(c.Context, project, records)

	var batchErr *pipeline.BatchError
	if stageErr != nil && !errors.As(stageErr, &batchErr) {
		finishRun(database, runID, 0, 0)
		return fmt.Errorf("%s stopped: %w", stage, stageErr)
	}

	if err := database.SaveFileRecordsBatch(project.Name, out); err != nil {
		return fmt.Errorf("failed to save %s results: %w", stage, err)
	}

	failures := 0
	if batchErr != nil {
		failures = len(batchErr.Failures)
	}
	finishRun(database, runID, len(out), failures)

	fmt.Printf("%s: %d files in %s, %d failed\n", stage, len(out), utils.FormatDuration(time.Since(start)), failures)
	return stageErr
}

func resizeFiles(c *cli.Context) error {
	delegate, err := newDelegate(stringOr(c, "delegate", cfg.Imaging.Delegate))
	if err != nil {
		return err
	}

	return runStage(c, "resize", func(ctx context.Context, project *models.Project, records []models.FileRecord) ([]models.FileRecord, error) {
		fmt.Printf("Resizing %d files into %s\n", len(records), project.ResizedDir)
		return pipeline.ResizeAll(ctx, records, delegate, pipeline.Options{
			OutputDir:    project.ResizedDir,
			MaxDimension: intOr(c, "max-dim", cfg.Imaging.MaxDimension),
			Reuse:        c.Bool("reuse") || cfg.Imaging.ReuseExisting,
			ShowProgress: !c.Bool("no-progress"),
		})
	})
}

func reencodeFiles(c *cli.Context) error {
	delegate, err := newDelegate(stringOr(c, "delegate", cfg.Imaging.Delegate))
	if err != nil {
		return err
	}
	format, err := imaging.ParseFormat(stringOr(c, "format", cfg.Imaging.Format))
	if err != nil {
		return err
	}

	return runStage(c, "reencode", func(ctx context.Context, project *models.Project, records []models.FileRecord) ([]models.FileRecord, error) {
		fmt.Printf("Re-encoding %d files as %s into %s\n", len(records), format, project.EncodedDir)
		return pipeline.ReencodeAll(ctx, records, delegate, pipeline.Options{
			OutputDir:    project.EncodedDir,
			Format:       format,
			Quality:      intOr(c, "quality", cfg.Imaging.Quality),
			Reuse:        c.Bool("reuse") || cfg.Imaging.ReuseExisting,
			ShowProgress: !c.Bool("no-progress"),
		})
	})
}

func showReport(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := database.GetFileRecords(project.Name)
	if err != nil {
		return err
	}
	report := pipeline.Report(records)

	fmt.Printf("Project: %s\n", project.Name)
	fmt.Printf("Files: %d (%s)\n", report.Files, utils.FormatMB(report.OriginalMB))
	fmt.Printf("Resized: %d files, %s from %s, ratio %s\n",
		report.ResizedFiles, utils.FormatMB(report.ResizedMB), utils.FormatMB(report.ResizedOriginalMB),
		utils.FormatRatio(report.ResizeRatio, report.HasResizeRatio))
	fmt.Printf("Re-encoded: %d files, %s from %s, ratio %s\n",
		report.ReencodedFiles, utils.FormatMB(report.ReencodedMB), utils.FormatMB(report.ReencodedOriginalMB),
		utils.FormatRatio(report.ReencodeRatio, report.HasReencodeRatio))

	if path := c.String("xlsx"); path != "" {
		if err := export.WriteXLSX(path, records, report); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
	}
	return nil
}

func verifyOutputs(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := database.GetFileRecords(project.Name)
	if err != nil {
		return err
	}

	v, err := pipeline.VerifyResized(records, project.ResizedDir, stringOr(c, "pattern", cfg.Imaging.Pattern))
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", project.ResizedDir, err)
	}

	fmt.Printf("Checked %d resized files in %s\n", v.Checked, project.ResizedDir)
	for _, p := range v.Missing {
		fmt.Printf("  missing:  %s\n", p)
	}
	for _, p := range v.Larger {
		fmt.Printf("  larger:   %s\n", p)
	}
	for _, p := range v.Changed {
		fmt.Printf("  changed:  %s\n", p)
	}
	if !v.OK() {
		return fmt.Errorf("verification failed: %d missing, %d larger, %d changed", len(v.Missing), len(v.Larger), len(v.Changed))
	}
	fmt.Println("All resized files verified")
	return nil
}

func fetchBoundaries(c *cli.Context) error {
	q := geodata.Query{
		Place:   c.String("place"),
		Name:    c.String("name"),
		Key:     stringOr(c, "key", cfg.Geodata.Key),
		Timeout: int(cfg.Geodata.Timeout / time.Second),
	}
	if s := c.String("bbox"); s != "" {
		bound, err := geodata.ParseBound(s)
		if err != nil {
			return err
		}
		q.Bound = bound
	}

	// Leave the server time to report its own timeout.
	client := geodata.NewClient(cfg.Geodata.Endpoint, cfg.Geodata.Timeout+30*time.Second)
	fc, err := client.Polygons(c.Context, q)
	if err != nil {
		return err
	}
	if len(fc.Features) == 0 {
		log.Printf("No polygons matched the query")
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Wrote %d polygons to %s\n", len(fc.Features), out)
	return nil
}

func collectGeoreferenced(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	if project.GeorefDir == "" {
		return errors.New("project has no georeferencing directory")
	}
	if err := os.MkdirAll(project.GeorefDir, 0o755); err != nil {
		return err
	}

	if !c.Bool("no-wait") {
		prompt := fmt.Sprintf("Georeference the rasters in %s with the desktop GIS and save GeoTIFFs to %s.",
			project.ResizedDir, project.GeorefDir)
		if err := tiling.WaitForOperator(os.Stdout, prompt, nil); err != nil {
			return err
		}
	}

	sources, err := tiling.Sources(project.GeorefDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no georeferenced rasters found in %s", project.GeorefDir)
	}
	for _, src := range sources {
		side := "embedded georeferencing"
		if len(src.Sidecars) > 0 {
			names := make([]string, len(src.Sidecars))
			for i, s := range src.Sidecars {
				names[i] = filepath.Base(s)
			}
			side = strings.Join(names, ", ")
		}
		fmt.Printf("%-40s %10s  %s\n", filepath.Base(src.Path), utils.FormatSize(src.Size), side)
	}
	fmt.Printf("\n%d rasters ready for tiling\n", len(sources))
	return nil
}

// layerName is the tile sub-directory used for a georeferenced raster.
func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func generateTiles(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	opts := tiling.Options{
		MinZoom:    intOr(c, "min-zoom", cfg.Tiling.MinZoom),
		MaxZoom:    intOr(c, "max-zoom", cfg.Tiling.MaxZoom),
		Resampling: stringOr(c, "resampling", cfg.Tiling.Resampling),
		Profile:    cfg.Tiling.Profile,
		WebViewer:  cfg.Tiling.WebViewer,
		XYZ:        cfg.Tiling.XYZ,
		Processes:  intOr(c, "processes", cfg.Tiling.Processes),
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	var bound orb.Bound
	if s := c.String("bbox"); s != "" {
		if bound, err = geodata.ParseBound(s); err != nil {
			return err
		}
	}

	sources, err := tiling.Sources(project.GeorefDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no georeferenced rasters found in %s; run georef first", project.GeorefDir)
	}

	runID, err := database.StartRun(project.Name, "tile")
	if err != nil {
		return err
	}

	failures := 0
	for _, src := range sources {
		outDir := filepath.Join(project.TileDir, layerName(src.Path))
		fmt.Printf("Tiling %s (%s) into %s, zoom %d-%d\n",
			filepath.Base(src.Path), utils.FormatSize(src.Size), outDir, opts.MinZoom, opts.MaxZoom)

		start := time.Now()
		if err := tiling.Run(c.Context, cfg.Tiling.Binary, src.Path, outDir, opts); err != nil {
			if c.Context.Err() != nil {
				finishRun(database, runID, len(sources), failures+1)
				return err
			}
			log.Printf("Tiling failed for %s: %v", src.Path, err)
			failures++
			continue
		}

		counts, err := tiling.CountTiles(outDir)
		if err != nil {
			log.Printf("Failed to count tiles in %s: %v", outDir, err)
		} else {
			printTileCounts(counts, bound, opts.MinZoom, opts.MaxZoom)
		}
		if title, err := tiling.ViewerTitle(filepath.Join(outDir, "leaflet.html")); err == nil {
			fmt.Printf("  viewer: %s\n", title)
		}
		fmt.Printf("  done in %s\n", utils.FormatDuration(time.Since(start)))
	}
	finishRun(database, runID, len(sources), failures)

	if failures > 0 {
		return fmt.Errorf("tiling failed for %d of %d rasters", failures, len(sources))
	}
	return nil
}

func printTileCounts(counts map[int]int64, bound orb.Bound, minZoom, maxZoom int) {
	withExpected := bound.Max.Lon() > bound.Min.Lon()
	var total int64
	for z := minZoom; z <= maxZoom; z++ {
		total += counts[z]
		if withExpected {
			fmt.Printf("  z%-2d %8d tiles (area spans %d)\n", z, counts[z], tiling.Range(bound, maptile.Zoom(z)).Count())
			continue
		}
		fmt.Printf("  z%-2d %8d tiles\n", z, counts[z])
	}
	if withExpected {
		fmt.Printf("  %d tiles, %d expected for the area\n", total, tiling.ExpectedTiles(bound, minZoom, maxZoom))
		return
	}
	fmt.Printf("  %d tiles\n", total)
}

func publishTiles(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	if project.Destination.Endpoint == "" || project.Destination.Bucket == "" {
		return errors.New("project has no MinIO destination; create it with --endpoint and --bucket")
	}

	client, err := publish.NewClient(project)
	if err != nil {
		return err
	}

	publisher := publish.NewPublisher(database, project, client, &publish.PublisherConfig{
		NumWorkers:   intOr(c, "workers", cfg.Publish.Workers),
		BatchSize:    intOr(c, "batch", cfg.Publish.BatchSize),
		ShowProgress: true,
	})

	runID, err := database.StartRun(project.Name, "publish")
	if err != nil {
		return err
	}

	n, err := publisher.Register()
	if err != nil {
		finishRun(database, runID, 0, 0)
		return err
	}
	fmt.Printf("Registered %d files from %s\n", n, project.TileDir)

	if !c.Bool("no-bucket-setup") {
		if err := publisher.PrepareBucket(c.Context); err != nil {
			finishRun(database, runID, 0, 0)
			return err
		}
	}

	summary, err := publisher.Publish(c.Context)
	if summary != nil {
		processed := summary.UploadedFiles + summary.FailedFiles + summary.SkippedFiles
		finishRun(database, runID, int(processed), int(summary.FailedFiles))
		fmt.Printf("Uploaded %d files (%s) in %s, %d failed, %d skipped\n",
			summary.UploadedFiles, utils.FormatSize(summary.UploadedSize), utils.FormatDuration(summary.Duration),
			summary.FailedFiles, summary.SkippedFiles)
	}
	if err != nil {
		return fmt.Errorf("failed to publish tiles: %w", err)
	}
	if summary.FailedFiles > 0 {
		return fmt.Errorf("%d uploads failed; run publish again to retry them", summary.FailedFiles)
	}
	return nil
}

// defaultLayer returns the only tile layer under dir.
func defaultLayer(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var layers []string
	for _, e := range entries {
		if e.IsDir() {
			layers = append(layers, e.Name())
		}
	}
	switch len(layers) {
	case 0:
		return "", fmt.Errorf("no tile layers in %s; run tile first", dir)
	case 1:
		return layers[0], nil
	}
	return "", fmt.Errorf("several tile layers in %s (%s); choose one with --layer", dir, strings.Join(layers, ", "))
}

// tileURLTemplate derives the public {z}/{x}/{y} URL of a published layer.
func tileURLTemplate(project *models.Project, layer string) (string, error) {
	base := strings.TrimSuffix(project.Destination.PublicURL, "/")
	if base == "" {
		if project.Destination.Endpoint == "" || project.Destination.Bucket == "" {
			return "", errors.New("project has no public URL; pass --tile-url")
		}
		scheme := "http"
		if project.Destination.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, project.Destination.Endpoint, project.Destination.Bucket)
	}
	if key := publish.ObjectKey(project.Destination.Folder, layer); key != "" {
		base += "/" + key
	}
	return base + "/{z}/{x}/{y}.png", nil
}

// overlayBound is the extent of every overlay feature.
func overlayBound(overlays []webmap.Overlay) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	for _, o := range overlays {
		if o.Data == nil {
			continue
		}
		for _, f := range o.Data.Features {
			if f.Geometry == nil {
				continue
			}
			b := f.Geometry.Bound()
			if !found {
				bound, found = b, true
				continue
			}
			bound = bound.Union(b)
		}
	}
	return bound, found
}

func writeWebmap(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	tmpl := c.String("tile-url")
	if tmpl == "" {
		layer := c.String("layer")
		if layer == "" {
			if layer, err = defaultLayer(project.TileDir); err != nil {
				return err
			}
		}
		if tmpl, err = tileURLTemplate(project, layer); err != nil {
			return err
		}
	}

	page := webmap.Page{
		Title:       stringOr(c, "title", project.Name),
		TileURL:     tmpl,
		TMS:         !cfg.Tiling.XYZ,
		Attribution: cfg.Webmap.Attribution,
		MinZoom:     cfg.Tiling.MinZoom,
		MaxZoom:     cfg.Tiling.MaxZoom,
		Basemap:     cfg.Webmap.Basemap,
	}

	for _, path := range c.StringSlice("overlay") {
		fc, err := webmap.ReadOverlay(path)
		if err != nil {
			return err
		}
		page.Overlays = append(page.Overlays, webmap.Overlay{Name: layerName(path), Data: fc})
	}

	if s := c.String("bbox"); s != "" {
		if page.Bound, err = geodata.ParseBound(s); err != nil {
			return err
		}
	} else if b, ok := overlayBound(page.Overlays); ok {
		page.Bound = b
	}

	out := c.String("out")
	if out == "" {
		out = project.TileDir
	}
	path, err := webmap.WriteFile(out, page)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (tiles from %s)\n", path, tmpl)
	if hint := publishHint(project, path); hint != "" {
		fmt.Println(hint)
	}
	return nil
}

// publishHint returns a reminder to upload a page written inside the tile
// directory, or "" when the page lives elsewhere.
func publishHint(project *models.Project, pagePath string) string {
	if project.TileDir == "" {
		return ""
	}
	rel, err := filepath.Rel(project.TileDir, pagePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return fmt.Sprintf("Run 'oldmaps publish --project %s' to upload %s with the tiles.", project.Name, filepath.ToSlash(rel))
}

// showStatus prints the inventory, processing and upload state of a project.
func showStatus(c *cli.Context) error {
	database, project, err := openProject(c)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.GetStats(project.Name)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Project: %s\n", project.Name)
	fmt.Printf("Source Path: %s\n", project.SourcePath)
	if project.Destination.Bucket != "" {
		fmt.Printf("Destination: %s/%s/%s\n", project.Destination.Endpoint, project.Destination.Bucket, project.Destination.Folder)
	}
	fmt.Printf("Files: %d (Size: %s)\n", stats.TotalFiles, utils.FormatSize(stats.TotalSize))
	fmt.Printf("Resized: %d (Size: %s)\n", stats.ResizedFiles, utils.FormatSize(stats.ResizedSize))
	fmt.Printf("Re-encoded: %d (Size: %s)\n", stats.ReencodedFiles, utils.FormatSize(stats.ReencodedSize))
	fmt.Printf("Failed: %d\n", stats.FailedFiles)

	fmt.Printf("Tiles: %d (Size: %s)\n", stats.TotalTiles, utils.FormatSize(stats.TotalTileSize))
	fmt.Printf("Tiles Uploaded: %d (Size: %s)\n", stats.UploadedTiles, utils.FormatSize(stats.UploadedSize))
	fmt.Printf("Tiles Pending: %d (Size: %s)\n", stats.PendingTiles, utils.FormatSize(stats.PendingSize))
	fmt.Printf("Tiles Failed: %d, Skipped: %d\n", stats.FailedTiles, stats.SkippedTiles)
	if stats.TotalTiles > 0 && stats.TotalTileSize > 0 {
		fileProgress := float64(stats.UploadedTiles) / float64(stats.TotalTiles) * 100
		sizeProgress := float64(stats.UploadedSize) / float64(stats.TotalTileSize) * 100
		fmt.Printf("Progress: %.2f%% (Files), %.2f%% (Size)\n", fileProgress, sizeProgress)
	}

	runs, err := database.GetRuns(project.Name)
	if err != nil {
		return fmt.Errorf("failed to get runs: %w", err)
	}
	if len(runs) > 0 {
		fmt.Println("\nRecent runs:")
	}
	for i, r := range runs {
		if i == 10 {
			break
		}
		state := "running"
		if !r.FinishedAt.IsZero() {
			state = utils.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		fmt.Printf("  %s  %-9s %5d files %4d failed  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Stage, r.Files, r.Failures, state)
	}
	return nil
}
