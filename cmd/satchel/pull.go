package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satchel-app/satchel/internal/api"
	"github.com/satchel-app/satchel/internal/config"
	"github.com/satchel-app/satchel/internal/connectivity"
	"github.com/satchel-app/satchel/internal/store"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download remote content for offline use",
}

func pullStack(cmd *cobra.Command) (*config.Config, *store.Store, *api.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, "", err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, "", err
	}

	token, err := authToken(ctx, st)
	if err != nil {
		st.Close()
		return nil, nil, nil, "", err
	}

	g := buildGovernor(cfg, st, connectivity.NewMonitor(true, nil))
	client := api.NewClient(cfg.APIBaseURL, g, nil)
	return cfg, st, client, token, nil
}

var pullQuizCmd = &cobra.Command{
	Use:   "quiz <id>",
	Short: "Download a quiz with its questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, client, token, err := pullStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		quiz, err := client.GetQuiz(ctx, token, args[0])
		if err != nil {
			return err
		}
		if err := st.SaveQuiz(ctx, quiz); err != nil {
			return err
		}

		fmt.Printf("Saved quiz %q (%d questions)\n", quiz.Title, len(quiz.Questions))
		return nil
	},
}

var pullSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Download a flashcard set with its cards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, client, token, err := pullStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		set, cards, err := client.GetFlashcardSet(ctx, token, args[0])
		if err != nil {
			return err
		}
		if err := st.SaveFlashcardSet(ctx, set); err != nil {
			return err
		}
		for _, card := range cards {
			if err := st.SaveFlashcard(ctx, card); err != nil {
				return fmt.Errorf("failed to save card %s: %w", card.ID, err)
			}
		}

		fmt.Printf("Saved set %q (%d cards)\n", set.Title, len(cards))
		return nil
	},
}

func init() {
	pullCmd.AddCommand(pullQuizCmd)
	pullCmd.AddCommand(pullSetCmd)
	rootCmd.AddCommand(pullCmd)
}
