package cli

import (
	"github.com/spf13/cobra"

	"github.com/tbourn/go-rag-backend/internal/app"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document, chunk, session and highlight",
	Long: `Empties the vector index and every table except users. The caller
must be listed in ADMIN_USER_IDS.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

var (
	clearAs  string
	clearYes bool
)

func init() {
	clearCmd.Flags().StringVarP(&clearAs, "user", "u", "", "Administrator user id")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
	_ = clearCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		cmd.Println("Refusing to clear without --yes.")
		return nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Admin.ClearAll(cmd.Context(), clearAs); err != nil {
		return err
	}
	cmd.Println("All documents, sessions and highlights removed.")
	return nil
}
