package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/user"
)

func (cli *commandLine) recomputeCommand() *cobra.Command {
	var sess, semester, level string
	cmd := &cobra.Command{
		Use:   "recompute STUDENT_ID...",
		Short: "Rebuild the standings of the students for a term from their registrations and results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sem, err := grading.ParseSemester(semester)
			if err != nil {
				return err
			}
			keys := make([]grading.Key, 0, len(args))
			for _, id := range args {
				keys = append(keys, grading.Key{StudentID: id, Session: sess, Semester: sem, Level: grading.Level(level)})
			}
			return cli.invoke(func(svc *standing.Service) error {
				if err := svc.Recompute(commandContext(cmd), keys...); err != nil {
					return err
				}
				cmd.Printf("recomputed %d standing(s)\n", len(keys))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sess, "session", "", "session, e.g. 2023/2024")
	cmd.Flags().StringVar(&semester, "semester", "", "first or second")
	cmd.Flags().StringVar(&level, "level", "", "100, 200, 300 or 400")
	for _, f := range []string{"session", "semester", "level"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (cli *commandLine) readinessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "readiness SESSION_ID",
		Short: "Tell whether a session can be closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.invoke(func(svc *session.Service) error {
				rd, err := svc.Readiness(commandContext(cmd), args[0])
				if err != nil {
					return err
				}
				cmd.Printf("session %s: %d/%d approved by the dean\n", rd.Session, rd.Approved, rd.Total)
				for _, r := range rd.Reasons {
					cmd.Printf("  - %s: %s\n", r.Code, r.Message)
				}
				if rd.Ready {
					cmd.Println("ready to close")
				}
				return nil
			})
		},
	}
}

func (cli *commandLine) closeSessionCommand() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "close-session SESSION_ID",
		Short: "Promote the cohort and complete the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.invoke(func(users *user.Service, svc *session.Service) error {
				ctx := commandContext(cmd)
				actor, err := users.GetByUsernameOrEmail(ctx, as)
				if err != nil {
					return err
				}
				sess, err := svc.Close(ctx, args[0], actor)
				if err != nil {
					return err
				}
				st := sess.PromotionStats
				cmd.Printf("session %s closed by %s\n", sess.Name, actor.Username)
				cmd.Printf("  100 -> 200: %d\n  200 -> 300: %d\n  300 -> 400: %d\n", st.Promoted100To200, st.Promoted200To300, st.Promoted300To400)
				cmd.Printf("  graduated: %d\n  extra year: %d\n  processed: %d\n", st.Graduated, st.ExtraYear, st.TotalProcessed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "username or email of the admin closing the session")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
