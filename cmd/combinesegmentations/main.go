package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"labelfusion/internal/models"
	"labelfusion/pkg/config"
	"labelfusion/pkg/fusion"
	"labelfusion/pkg/gridio"
)

func main() {
	// Parse command line arguments
	method := flag.String("m", "", "Fusion method: STAPLE, MULTISTAPLE, MULTISTAPLE2, VOTE or VOTE_MULTISTAPLE2 (default: MULTISTAPLE2)")
	inputs := flag.String("in", "", "Comma separated input segmentations (images or slice directories)")
	numClasses := flag.Int("n", 2, "Number of classes; 0 derives it from the inputs")
	priorFiles := flag.String("P", "", "Comma separated prior probability images, one per class ([VOTE_]MULTISTAPLE2 only)")
	priors := flag.String("p", "", "Comma separated prior probabilities, one per class")
	trust := flag.String("t", "", "Comma separated trust values in (0,1], one per input")
	threshold := flag.Float64("e", 1e-5, "EM termination threshold")
	outSoft := flag.String("outs", "", "Comma separated soft output files, one per class (.bin for raw float32)")
	outHard := flag.String("outh", "", "Hard segmentation output (image, or directory for 3-D inputs)")
	outConfusion := flag.String("outc", "", "Confusion report output (.yaml, or raw float32 volume)")
	useMask := flag.Bool("mask", false, "Only fuse pixels where the inputs disagree")
	maskRadius := flag.Int("maskradius", 1, "Dilation radius of the disagreement mask")
	order := flag.String("ord", "", "Comma separated classes in order of preference for ties")
	inValues := flag.String("iv", "", "Comma separated input labels for relabeling")
	outValues := flag.String("ov", "", "Comma separated output labels for relabeling")
	threads := flag.Int("threads", 0, "Maximum number of worker goroutines (default: all CPUs)")
	maxIter := flag.Int("maxiter", 1000, "Maximum number of EM iterations")
	preview := flag.String("preview", "", "Colour preview of the hard segmentation (PNG)")
	previewScale := flag.Int("previewscale", 4, "Enlargement factor of the preview")
	compress := flag.Bool("z", false, "Use the strongest PNG compression for outputs")
	configPath := flag.String("config", "", "YAML configuration file; flags override its values")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn or error")
	initConfig := flag.String("initconfig", "", "Write a default configuration file to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	// Validate inputs
	inputFiles := splitList(*inputs)
	if len(inputFiles) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags take precedence over the configuration file
	var parseErr error
	flag.Visit(func(f *flag.Flag) {
		var err error
		switch f.Name {
		case "m":
			cfg.Fusion.Method = *method
		case "n":
			cfg.Fusion.NumClasses = *numClasses
		case "p":
			cfg.Fusion.Priors, err = parseFloats(*priors)
		case "t":
			cfg.Fusion.Trust, err = parseFloats(*trust)
		case "e":
			cfg.Fusion.TerminationThreshold = *threshold
		case "mask":
			cfg.Fusion.UseMask = *useMask
		case "maskradius":
			cfg.Fusion.MaskDilationRadius = *maskRadius
		case "ord":
			cfg.Fusion.PreferenceOrder, err = parseInts(*order)
		case "threads":
			cfg.Processing.NumWorkers = *threads
		case "maxiter":
			cfg.Fusion.MaxIterations = *maxIter
		case "loglevel":
			cfg.Output.LogLevel = *logLevel
		}
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("-%s: %w", f.Name, err)
		}
	})

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.LogLevel()).
		With().Timestamp().Logger()

	if parseErr != nil {
		logger.Fatal().Err(parseErr).Msg("Invalid argument")
	}

	params, err := cfg.FusionParams()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	params.Logger = &logger
	softFiles := splitList(*outSoft)
	params.GenerateProbabilities = len(softFiles) > 0
	params.GenerateConfusion = *outConfusion != ""

	// Reject bad settings before any image is read
	if err := params.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if params.NumClasses > 0 && len(softFiles) > 0 && len(softFiles) != params.NumClasses {
		logger.Fatal().Msgf("Expected %d soft output files, got %d", params.NumClasses, len(softFiles))
	}
	relabelFrom, err := parseInts(*inValues)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid -iv")
	}
	relabelTo, err := parseInts(*outValues)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid -ov")
	}
	if len(relabelFrom) != len(relabelTo) {
		logger.Fatal().Msg("Number of values following -iv and -ov should be equal")
	}
	if *outHard == "" && len(softFiles) == 0 && *outConfusion == "" && *preview == "" {
		logger.Warn().Msg("No output requested; results will only be summarised")
	}

	fmt.Println("================================")
	fmt.Println("COMBINE SEGMENTATIONS")
	fmt.Printf("Method: %s, inputs: %d\n", params.Strategy, len(inputFiles))
	fmt.Println("================================")

	startTime := time.Now()

	// Load the observers
	observers := make([]*models.LabelGrid, len(inputFiles))
	for i, path := range inputFiles {
		g, err := gridio.ReadLabelGrid(path)
		if err != nil {
			logger.Fatal().Err(err).Str("input", path).Msg("Failed to read segmentation")
		}
		if err := gridio.Relabel(g, relabelFrom, relabelTo); err != nil {
			logger.Fatal().Err(err).Msg("Relabeling failed")
		}
		observers[i] = g
		logger.Debug().Str("input", path).Str("shape", g.Shape.String()).Msg("Loaded segmentation")
	}

	for _, path := range splitList(*priorFiles) {
		g, err := gridio.ReadProbabilityGrid(path)
		if err != nil {
			logger.Fatal().Err(err).Str("prior", path).Msg("Failed to read prior probability image")
		}
		params.PriorGrids = append(params.PriorGrids, g)
	}

	combiner := fusion.NewCombiner(params)
	res, err := combiner.Process(observers)
	if err != nil {
		logger.Fatal().Err(err).Str("state", combiner.State().String()).Msg("Fusion failed")
	}
	if len(softFiles) > 0 && len(softFiles) != res.NumClasses {
		logger.Fatal().Msgf("Expected %d soft output files, got %d", res.NumClasses, len(softFiles))
	}

	// Write the requested outputs
	writer := &gridio.Writer{Compress: *compress}
	if *outHard != "" {
		if err := writer.WriteLabelGrid(*outHard, res.Labels); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write hard segmentation")
		}
	}
	for c, path := range softFiles {
		if err := writer.WriteProbabilityGrid(path, res.Probabilities[c]); err != nil {
			logger.Fatal().Err(err).Int("class", c).Msg("Failed to write soft segmentation")
		}
	}
	if *outConfusion != "" {
		if err := writer.WriteConfusionReport(*outConfusion, res.Confusion); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write confusion report")
		}
	}
	if *preview != "" {
		if err := writer.WriteLabelPreview(*preview, res.Labels, res.NumClasses, *previewScale); err != nil {
			logger.Warn().Err(err).Msg("Failed to write preview")
		}
	}
	processingTime := time.Since(startTime)

	if !cfg.Output.Verbose {
		return
	}

	fmt.Printf("\nFusion completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("Classes: %d, grid: %s\n", res.NumClasses, res.Labels.Shape)
	if res.Mask != nil {
		fmt.Printf("Mask: %d of %d pixels fused\n", res.Mask.Count(), len(res.Mask.Data))
	}
	if res.Strategy.Iterative() {
		fmt.Printf("EM iterations: %d (converged: %v)\n", res.Iterations, res.Converged)
	}
	for _, w := range res.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	a := res.Agreement
	fmt.Printf("\nAgreement with the fused segmentation:\n")
	fmt.Printf("=======================================\n")
	for o, f := range a.Fraction {
		fmt.Printf("Input %d (%s): %.2f%% of pixels, Dice per class %s\n",
			o, inputFiles[o], 100*f, formatFloats(a.Dice[o]))
	}
	fmt.Printf("Mean agreement: %.2f%% (std %.2f%%)\n", 100*a.MeanFraction, 100*a.StdFraction)
	fmt.Printf("Mean Dice per class: %s\n", formatFloats(a.MeanDice))
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range splitList(s) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
