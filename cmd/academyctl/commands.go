package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"academycore/internal/calc"
	"academycore/internal/core"
	"academycore/internal/syncer"
)

const dateLayout = "2006-01-02"

func newRootCmd(state *rootState, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "academyctl",
		Short:         "Operate the academy store from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || state.app != nil {
				return nil
			}
			a, err := openApp(cmd.Context(), state.opts, stdout, stderr)
			if err != nil {
				return err
			}
			state.app = a
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().BoolVar(&state.opts.offline, "offline", false, "never contact the remote store; queue every change")
	root.PersistentFlags().BoolVar(&state.opts.metrics, "metrics", false, "print Prometheus metrics to stderr on exit")
	root.PersistentFlags().BoolVar(&state.opts.events, "events", false, "write one JSON line per timed operation to stderr")

	svc := func() *core.Service { return state.app.svc }
	root.AddCommand(
		newStatusCmd(svc),
		newSyncCmd(state),
		newRefreshCmd(svc),
		newStudentCmd(svc),
		newPayCmd(svc),
		newOverdueCmd(svc),
		newStreaksCmd(svc),
		newRemindCmd(svc),
		newBackupCmd(svc),
		newPromoteCmd(svc),
		newPhotoCmd(svc),
	)
	return root
}

func newStatusCmd(svc func() *core.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the dashboard and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := svc()
			d := s.Dashboard()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "students\t%d (%d active)\n", d.TotalStudents, d.ActiveStudents)
			fmt.Fprintf(tw, "attendance\t%.1f%%\n", d.AttendanceRate*100)
			fmt.Fprintf(tw, "fees paid\t%d\n", d.FeePaidCount)
			fmt.Fprintf(tw, "overdue\t%d\n", d.OverdueCount)
			fmt.Fprintf(tw, "collected this month\t%s\n", d.MonthlyCollection.StringFixed(2))
			fmt.Fprintf(tw, "pending sync\t%d\n", s.PendingSync())
			fmt.Fprintf(tw, "online\t%t\n", s.Coordinator().Online())
			return tw.Flush()
		},
	}
}

func newSyncCmd(state *rootState) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued offline changes against the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := state.app
			coordinator := a.svc.Coordinator()
			if !watch {
				res := a.svc.SyncNow(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d, remaining %d\n", res.Succeeded, len(res.Remaining))
				return nil
			}
			probe, ok := a.monitor.(*syncer.ProbeMonitor)
			if !ok {
				return fmt.Errorf("watch needs a remote store: %w", core.ErrNoRemote)
			}
			coordinator.Start(cmd.Context())
			defer coordinator.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "watching connectivity every %s\n", a.cfg.ProbeInterval)
			probe.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "stopped, remaining %d\n", coordinator.Pending())
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep probing and drain on every reconnect until interrupted")
	return cmd
}

func newRefreshCmd(svc func() *core.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace local data with the remote tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := svc().RefreshFromRemote(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d students, %d classes, %d attendance, %d fees, %d exams\n",
				len(c.Students), len(c.Classes), len(c.Attendance), len(c.Fees), len(c.Exams))
			return nil
		},
	}
}

func newStudentCmd(svc func() *core.Service) *cobra.Command {
	cmd := &cobra.Command{Use: "student", Short: "Manage students"}

	var in core.Student
	var joined string
	add := &cobra.Command{
		Use:   "add",
		Short: "Enrol a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := svc()
			if joined != "" {
				t, err := time.Parse(dateLayout, joined)
				if err != nil {
					return fmt.Errorf("--joined: %w", err)
				}
				in.JoinedDate = &t
			}
			phone := in.ParentPhone
			if phone == "" {
				phone = in.Phone
			}
			for _, m := range s.PossibleDuplicates(phone, in.Name) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s (%s) already uses this number\n", m.Student.Name, m.Student.ID)
			}
			st, _, err := s.CreateStudent(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "student name")
	add.Flags().StringVar(&in.Grade, "grade", "", "grade label")
	add.Flags().StringVar(&in.Phone, "phone", "", "student phone")
	add.Flags().StringVar(&in.ParentName, "parent", "", "parent name")
	add.Flags().StringVar(&in.ParentPhone, "parent-phone", "", "parent phone")
	add.Flags().StringVar(&in.Gender, "gender", "", "gender")
	add.Flags().StringVar(&joined, "joined", "", "join date (YYYY-MM-DD)")

	suspend := &cobra.Command{
		Use:   "suspend <student-id>",
		Short: "Temporarily take a student off the roll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := svc().SetStudentStatus(cmd.Context(), args[0], core.StudentTemporarySuspended)
			return err
		},
	}
	resume := &cobra.Command{
		Use:   "resume <student-id>",
		Short: "Put a suspended student back on the roll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := svc().SetStudentStatus(cmd.Context(), args[0], core.StudentActive)
			return err
		},
	}
	remove := &cobra.Command{
		Use:   "delete <student-id>",
		Short: "Delete a student with their fees and exams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := svc().DeleteStudent(cmd.Context(), args[0])
			return err
		},
	}
	cmd.AddCommand(add, suspend, resume, remove)
	return cmd
}

func newPayCmd(svc func() *core.Service) *cobra.Command {
	var amount, month, notes string
	cmd := &cobra.Command{
		Use:   "pay <student-id>",
		Short: "Record a fee payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			fee := core.FeeRecord{StudentID: args[0], Amount: value, Notes: notes}
			if month != "" {
				t, err := time.Parse(dateLayout, month)
				if err != nil {
					return fmt.Errorf("--month: %w", err)
				}
				fee.BillingMonth = &t
			}
			saved, _, err := svc().RecordPayment(cmd.Context(), fee)
			if err != nil {
				return err
			}
			cycle, _ := calc.CycleAnchor(saved)
			fmt.Fprintf(cmd.OutOrStdout(), "%s paid for %s, next due %s\n",
				saved.ID, cycle.Format("January 2006"), saved.NextDueDate.Format(dateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount paid")
	cmd.Flags().StringVar(&month, "month", "", "billing cycle start (YYYY-MM-DD); defaults to the next due cycle")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newOverdueCmd(svc func() *core.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List active students whose fee is overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := svc()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDUE")
			for _, status := range s.OverdueStudents() {
				st, _ := s.Store().GetStudent(status.StudentID)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", st.ID, st.Name, formatDue(status))
			}
			return tw.Flush()
		},
	}
}

func formatDue(status calc.FeeStatus) string {
	if status.NextDue.IsZero() {
		return "never paid"
	}
	return status.NextDue.Format(dateLayout)
}

func newStreaksCmd(svc func() *core.Service) *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "streaks",
		Short: "List students with consecutive absences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tABSENCES")
			for _, s := range svc().AbsenceStreaks(threshold) {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Student.ID, s.Student.Name, s.Streak)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&threshold, "min", calc.StreakAlertThreshold, "minimum streak to report")
	return cmd
}

func newRemindCmd(svc func() *core.Service) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "remind [student-id...]",
		Short: "Print WhatsApp fee reminder links and record them as sent",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := svc()
			ids := args
			if all {
				ids = nil
				for _, status := range s.OverdueStudents() {
					ids = append(ids, status.StudentID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no students to remind")
			}
			for _, id := range ids {
				if _, err := s.SendFeeReminder(cmd.Context(), id); err != nil {
					return fmt.Errorf("remind %s: %w", id, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "overdue", false, "remind every overdue student")
	return cmd
}

func newBackupCmd(svc func() *core.Service) *cobra.Command {
	cmd := &cobra.Command{Use: "backup", Short: "Export or import a JSON backup"}
	export := &cobra.Command{
		Use:   "export [file]",
		Short: "Write every collection as JSON (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "-" {
				return svc().ExportBackup(cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := svc().ExportBackup(f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace local data with a backup and replicate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			c, err := svc().ImportBackup(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d students, %d classes, %d attendance, %d fees, %d exams\n",
				len(c.Students), len(c.Classes), len(c.Attendance), len(c.Fees), len(c.Exams))
			return nil
		},
	}
	cmd.AddCommand(export, imp)
	return cmd
}

func newPromoteCmd(svc func() *core.Service) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Move numeric grades up by one, once per year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if year == 0 {
				year = time.Now().Year()
			}
			n, already, err := svc().PromoteGrades(cmd.Context(), year)
			if err != nil {
				return err
			}
			if already {
				fmt.Fprintf(cmd.OutOrStdout(), "grades already promoted for %d\n", year)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "promoted %d students for %d\n", n, year)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "academic year (defaults to the current year)")
	return cmd
}

func newPhotoCmd(svc func() *core.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "photo <student-id> <image>",
		Short: "Store a student's photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			st, err := svc().UploadPhoto(cmd.Context(), args[0], f.Name(), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.PhotoKey)
			return nil
		},
	}
}
