package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wikimedia/wikimedia-ocr/engine"
)

var authCMD = &cobra.Command{
	Use:   "auth",
	Short: "Obtain Transkribus tokens",
	Long:  "Exchange Transkribus account credentials for access and refresh tokens.",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientConfig := engine.DefaultTranskribusClientConfig()
		clientConfig.Username, _ = cmd.Flags().GetString("username")
		clientConfig.Password, _ = cmd.Flags().GetString("password")
		if clientConfig.Username == "" {
			clientConfig.Username = os.Getenv("OCR_TRANSKRIBUS_USERNAME")
		}
		if clientConfig.Password == "" {
			clientConfig.Password = os.Getenv("OCR_TRANSKRIBUS_PASSWORD")
		}
		if clientConfig.Username == "" || clientConfig.Password == "" {
			return fmt.Errorf("username and password are required")
		}

		client := engine.NewTranskribusClient(clientConfig)
		access, refresh, err := client.Authenticate(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "access_token: %s\n", access)
		fmt.Fprintf(cmd.OutOrStdout(), "refresh_token: %s\n", refresh)
		return nil
	},
}

func init() {
	authCMD.Flags().String("username", "", "Transkribus account username")
	authCMD.Flags().String("password", "", "Transkribus account password")
}
