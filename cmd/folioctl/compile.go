package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
)

var compileCmd = &cobra.Command{
	Use:   "compile <file.tex>",
	Short: "Compile a LaTeX document through the backend",
	Long: `Compile sends a .tex file to the backend compiler and writes the PDF next
to it, or to --out. A failed compilation prints the compiler log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(src)) == "" {
			return fmt.Errorf("%s is empty", args[0])
		}

		lang, _ := cmd.Flags().GetString("lang")
		if lang != config.LangEn && lang != config.LangZh {
			return fmt.Errorf("unknown language %q, use %s or %s", lang, config.LangEn, config.LangZh)
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".pdf"
		}
		user, _ := cmd.Flags().GetString("user")

		ctx := cmd.Context()
		client, err := signIn(ctx, api.NewFromConfig(), user)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), titleStyle.Render("Compiling ")+args[0])
		pdf, err := client.CompileLatex(ctx, string(src), lang)
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Log != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), logStyle.Render(strings.TrimRight(apiErr.Log, "\n")))
			return errors.New("compilation failed")
		}
		if err != nil {
			return err
		}

		if err := os.WriteFile(out, pdf, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes)\n", okStyle.Render("Wrote"), out, len(pdf))
		return nil
	},
}

func init() {
	compileCmd.Flags().String("lang", config.LangEn, "document language: en or zh")
	compileCmd.Flags().StringP("out", "o", "", "output PDF path (default: the source with .pdf)")
	compileCmd.Flags().String("user", "", "username to sign in as; the password is read from $"+EnvPassword)

	rootCmd.AddCommand(compileCmd)
}
