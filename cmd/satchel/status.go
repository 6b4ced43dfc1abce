package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Entries at or above this retry count are called out as candidates
// for manual inspection; nothing is ever purged automatically.
const highRetryThreshold = 5

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store contents and pending sync work",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		quizzes, err := st.CountQuizzes(ctx)
		if err != nil {
			return err
		}
		flashcards, err := st.CountFlashcards(ctx)
		if err != nil {
			return err
		}
		documents, err := st.CountDocuments(ctx)
		if err != nil {
			return err
		}
		attempts, err := st.CountAttempts(ctx)
		if err != nil {
			return err
		}
		unsynced, err := st.ListUnsyncedAttempts(ctx)
		if err != nil {
			return err
		}
		pending, err := st.ListPendingActions(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Store: %s\n\n", st.Path())
		fmt.Printf("Quizzes:     %d\n", quizzes)
		fmt.Printf("Flashcards:  %d\n", flashcards)
		fmt.Printf("Documents:   %d\n", documents)
		fmt.Printf("Attempts:    %d (%d unsynced)\n", attempts, len(unsynced))
		fmt.Printf("Queue:       %d pending\n", len(pending))

		stuck := 0
		for _, entry := range pending {
			if entry.Retries >= highRetryThreshold {
				stuck++
			}
		}
		if stuck > 0 {
			fmt.Printf("\n%d entries have %d+ failed attempts:\n", stuck, highRetryThreshold)
			for _, entry := range pending {
				if entry.Retries >= highRetryThreshold {
					fmt.Printf("  #%d %s (queued %s, %d retries)\n",
						entry.ID, entry.Action,
						entry.CreatedAt.Format("2006-01-02 15:04"), entry.Retries)
				}
			}
			fmt.Println("\nInspect these payloads; 'satchel queue drop <id>' removes one permanently.")
		}
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending queue entries, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pending, err := st.ListPendingActions(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		for _, entry := range pending {
			fmt.Printf("#%d %-18s queued %s  retries=%d\n",
				entry.ID, entry.Action,
				entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Retries)
		}
		return nil
	},
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <id>",
	Short: "Permanently remove a queue entry",
	Long: `Remove a queue entry without submitting it. This is the manual escape
hatch for payloads the server permanently rejects; the recorded action
is lost.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid entry id %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetQueueEntry(ctx, id); err != nil {
			return err
		}
		if err := st.DeleteQueueEntry(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Dropped queue entry #%d\n", id)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDropCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
}
