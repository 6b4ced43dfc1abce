package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satchel-app/satchel/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the API session token",
	Long: `Store the bearer token used for remote submissions. Obtain a token
from the platform's account page; authentication itself happens there,
not here.

Example usage:
  satchel login --token st_abc123 --user user-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		userID, _ := cmd.Flags().GetString("user")
		if token == "" {
			return fmt.Errorf("--token is required")
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

		if err := st.SetSetting(ctx, store.SettingAuthToken, token); err != nil {
			return err
		}
		if userID != "" {
			if err := st.SetSetting(ctx, store.SettingUserID, userID); err != nil {
				return err
			}
		}
		fmt.Println("Session stored")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
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

		if err := st.DeleteSetting(ctx, store.SettingAuthToken); err != nil {
			return err
		}
		fmt.Println("Session cleared")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("token", "", "Bearer token for the remote API")
	loginCmd.Flags().String("user", "", "User id to associate with local data")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
