package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

type runOptions struct {
	terms          []string
	populationSize int
	generations    int
	mutationRate   float64
	eliteSize      int
	workers        int
	seed           int64
	scope          string
	save           bool
	name           string
	quiet          bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "timetable",
		Short:   "Generate course timetables with a genetic search",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
	}

	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the search for one or more academic years",
		Long: `Run the timetable search for each --term in order, print the best
timetable and its conflicts, and optionally save it. Unset tuning flags fall
back to the SCHEDULER_* configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTerms(cmd, opts)
		},
	}
	runCmd.Flags().StringSliceVarP(&opts.terms, "term", "t", nil, "Academic year ID (repeatable)")
	runCmd.Flags().IntVar(&opts.populationSize, "population", 0, "Population size")
	runCmd.Flags().IntVar(&opts.generations, "generations", 0, "Maximum generations")
	runCmd.Flags().Float64Var(&opts.mutationRate, "mutation-rate", -1, "Per-assignment mutation probability")
	runCmd.Flags().IntVar(&opts.eliteSize, "elite", -1, "Elite candidates copied unchanged")
	runCmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel fitness workers")
	runCmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed (0 = time based)")
	runCmd.Flags().StringVar(&opts.scope, "scope", "", "External commitment scope: all or other_terms")
	runCmd.Flags().BoolVar(&opts.save, "save", false, "Persist the best timetable of each term")
	runCmd.Flags().StringVar(&opts.name, "name", "", "Schedule name used with --save")
	runCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide the progress bar")
	_ = runCmd.MarkFlagRequired("term")

	termsCmd := &cobra.Command{
		Use:   "terms",
		Short: "List academic years",
		RunE:  listTerms,
	}

	var subject, role string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mintToken(cmd, subject, models.UserRole(role))
		},
	}
	tokenCmd.Flags().StringVar(&subject, "subject", "", "Token subject (user id)")
	tokenCmd.Flags().StringVar(&role, "role", string(models.RoleScheduler), "ADMIN, SCHEDULER or VIEWER")
	_ = tokenCmd.MarkFlagRequired("subject")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Report teachers double-booked across stored timetables",
		RunE:  auditCommitments,
	}

	rootCmd.AddCommand(runCmd, termsCmd, auditCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zap.Logger, *sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, logr, db, nil
}

func newService(cfg *config.Config, logr *zap.Logger, db *sqlx.DB) (*service.TimetableService, error) {
	scope, err := scheduler.ParseCommitmentScope(cfg.Scheduler.ExternalScope)
	if err != nil {
		return nil, err
	}
	return service.NewTimetableService(
		repository.NewAcademicYearRepository(db),
		repository.NewCourseRepository(db),
		repository.NewTeacherRepository(db),
		repository.NewClassroomRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewCommitmentRepository(db),
		db,
		service.NewMemoryRunStore(),
		nil,
		validator.New(),
		logr,
		service.TimetableServiceConfig{
			Defaults: scheduler.Params{
				PopulationSize: cfg.Scheduler.PopulationSize,
				Generations:    cfg.Scheduler.Generations,
				MutationRate:   cfg.Scheduler.MutationRate,
				EliteSize:      cfg.Scheduler.EliteSize,
				Workers:        cfg.Scheduler.Workers,
				Seed:           cfg.Scheduler.Seed,
			},
			ExternalScope: scope,
			RunTTL:        cfg.Scheduler.RunTTL,
		},
	), nil
}

func runTerms(cmd *cobra.Command, opts *runOptions) error {
	cfg, logr, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logr.Sync() //nolint:errcheck

	svc, err := newService(cfg, logr, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	failed := 0
	// terms run one after another so later terms see earlier saves as commitments
	for _, termID := range opts.terms {
		req := opts.request(termID, cmd)
		generations := cfg.Scheduler.Generations
		if req.Generations != nil {
			generations = *req.Generations
		}

		var bar *progressbar.ProgressBar
		var progress scheduler.ProgressFunc
		if !opts.quiet {
			bar = progressbar.Default(int64(generations), "term "+termID)
			progress = func(p scheduler.Progress) {
				_ = bar.Set(p.Generation + 1)
				bar.Describe(fmt.Sprintf("term %s best %.4f", termID, p.BestFitness))
			}
		}

		resp, err := svc.GenerateWithProgress(ctx, req, progress)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "term %s: %v\n", termID, err)
			continue
		}
		renderRun(out, resp)

		if opts.save && resp.Run.Status == dto.RunStatusCompleted {
			saved, err := svc.Save(ctx, dto.SaveTimetableRequest{RunID: resp.Run.ID, Name: opts.name})
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "term %s: save failed: %v\n", termID, err)
				continue
			}
			fmt.Fprintf(out, "saved %q as %s (fitness score %d)\n\n", saved.Name, saved.ScheduleID, saved.FitnessScore)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if opts.save && len(opts.terms) > 1 && ctx.Err() == nil {
		audit, err := svc.Audit(ctx)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "audit failed: %v\n", err)
		} else {
			renderAudit(out, audit)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d terms failed", failed, len(opts.terms))
	}
	return nil
}

// request maps flags onto a generate request; flags left unset keep the configured defaults.
func (o *runOptions) request(termID string, cmd *cobra.Command) dto.GenerateTimetableRequest {
	req := dto.GenerateTimetableRequest{TermID: termID, ExternalScope: o.scope}
	flags := cmd.Flags()
	if flags.Changed("population") {
		req.PopulationSize = &o.populationSize
	}
	if flags.Changed("generations") {
		req.Generations = &o.generations
	}
	if flags.Changed("mutation-rate") {
		req.MutationRate = &o.mutationRate
	}
	if flags.Changed("elite") {
		req.EliteSize = &o.eliteSize
	}
	if flags.Changed("workers") {
		req.Workers = &o.workers
	}
	if flags.Changed("seed") {
		req.Seed = &o.seed
	}
	return req
}

func listTerms(cmd *cobra.Command, _ []string) error {
	_, logr, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logr.Sync() //nolint:errcheck

	years, err := repository.NewAcademicYearRepository(db).List(context.Background())
	if err != nil {
		return err
	}
	renderTerms(cmd.OutOrStdout(), years)
	return nil
}

func auditCommitments(cmd *cobra.Command, _ []string) error {
	cfg, logr, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logr.Sync() //nolint:errcheck

	svc, err := newService(cfg, logr, db)
	if err != nil {
		return err
	}
	audit, err := svc.Audit(cmd.Context())
	if err != nil {
		return err
	}
	renderAudit(cmd.OutOrStdout(), audit)
	return nil
}

func mintToken(cmd *cobra.Command, subject string, role models.UserRole) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:    cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
		AccessTTL: cfg.JWT.AccessTTL,
	})
	token, expiresAt, err := tokens.Issue(subject, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}
