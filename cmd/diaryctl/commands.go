package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/app"
	"github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/database"
	"github.com/mx-space/diary/internal/modules/auth"
)

// env carries what every subcommand needs. open is replaced in tests.
type env struct {
	configPath string
	verbose    bool
	out        io.Writer
	in         io.Reader
	open       func(ctx context.Context, e *env) (*app.Services, func(), error)
}

func newEnv(out io.Writer) *env {
	return &env{out: out, in: os.Stdin, open: openServices}
}

func openServices(ctx context.Context, e *env) (*app.Services, func(), error) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()
	if e.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, nil, err
		}
	}
	st, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.NewServices(st, cfg, logger)
	if err != nil {
		_ = st.Close(ctx)
		return nil, nil, err
	}
	closeFn := func() {
		svc.Search.Close()
		_ = st.Close(context.Background())
		_ = logger.Sync()
	}
	return svc, closeFn, nil
}

// withServices opens the store for the duration of fn.
func (e *env) withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := e.open(ctx, e)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "diaryctl",
		Short:         "Maintenance tasks for the therapy diary service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetOut(e.out)
	cmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", config.DefaultConfigPath, "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "log store activity to stderr")

	addHashPassword(cmd, e)
	addImportSituations(cmd, e)
	addExport(cmd, e)
	addBackup(cmd, e)
	addRestore(cmd, e)
	addCompact(cmd, e)
	return cmd
}

func addHashPassword(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print a bcrypt hash for admin.password_hash or the universal diary password",
		Example: `
diaryctl hash-password 'correct horse battery'
echo 'correct horse battery' | diaryctl hash-password
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(e.in).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if utf8.RuneCountInString(password) < auth.MinPasswordLength || len(password) > auth.MaxPasswordLength {
				return fmt.Errorf("password must be %d to %d characters", auth.MinPasswordLength, auth.MaxPasswordLength)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addImportSituations(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "import-situations FILE",
		Short: "Import a nested markdown bullet list into the situation library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return e.withServices(cmd, func(ctx context.Context, svc *app.Services) error {
				res, err := svc.Situations.Import(ctx, string(src))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d situations, %d before items, %d after items\n",
					res.Situations, res.Before, res.After)
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addExport(topLevel *cobra.Command, e *env) {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export diaries|cards [DIARY_ID]",
		Short: "Write diaries or one diary's cards as CSV",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 1 && args[0] == "diaries":
				return nil
			case len(args) == 2 && args[0] == "cards":
				return nil
			}
			return errors.New(`expected "diaries" or "cards DIARY_ID"`)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return e.withServices(cmd, func(ctx context.Context, svc *app.Services) error {
				if args[0] == "diaries" {
					_, err := svc.Export.WriteDiaries(ctx, w)
					return err
				}
				_, err := svc.Export.WriteCards(ctx, w, args[1])
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	topLevel.AddCommand(cmd)
}

func addBackup(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump the store to the backups directory and upload it when S3 is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withServices(cmd, func(ctx context.Context, svc *app.Services) error {
				art, err := svc.Backup.Create(ctx)
				if art != nil {
					fmt.Fprintln(cmd.OutOrStdout(), art.Path)
				}
				return err
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addRestore(topLevel *cobra.Command, e *env) {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace store contents with a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("restore overwrites existing data, pass --yes to continue")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return e.withServices(cmd, func(ctx context.Context, svc *app.Services) error {
				counts, err := svc.Backup.Restore(ctx, data)
				if err != nil {
					return err
				}
				colls := make([]string, 0, len(counts))
				for coll := range counts {
					colls = append(colls, coll)
				}
				sort.Strings(colls)
				for _, coll := range colls {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", coll, counts[coll])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the overwrite")
	topLevel.AddCommand(cmd)
}

func addCompact(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "compact DIARY_ID",
		Short: "Renumber a diary's card order to 1..n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withServices(cmd, func(ctx context.Context, svc *app.Services) error {
				if err := svc.Diaries.Exists(ctx, args[0]); err != nil {
					return err
				}
				cards, err := svc.Cards.Compact(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "compacted %d cards\n", len(cards))
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}
