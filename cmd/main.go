package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var mainCMD = &cobra.Command{
	Use:   "wikimedia-ocr",
	Short: "OCR for Wikimedia-hosted images",
	Long:  "Transcribes text from Wikimedia-hosted images through pluggable OCR engines.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// A missing .env is fine; the environment may be set by the host.
	godotenv.Load()

	mainCMD.AddCommand(serveCMD)
	mainCMD.AddCommand(authCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		panic(err)
	}
}
