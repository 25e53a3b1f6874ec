package main

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spectra-gallery/spectra/internal/dom"
	"github.com/spectra-gallery/spectra/internal/theme"
)

func themeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Show, toggle or render the colour theme",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the active theme and its variables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.open(cmd, openOptions{fetchTheme: true})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch current := a.Theme.Current().(type) {
				case theme.ConfiguredTheme:
					printf(out, "theme: %s\n", current.Name)
					printf(out, "%s", current.Rule())
				case theme.AttributeOnlyTheme:
					printf(out, "theme: %s (no server palette)\n", current.Name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "toggle",
			Short: "Switch between dark and light",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.open(cmd, openOptions{fetchTheme: true})
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "theme: %s\n", a.Theme.Toggle())
				return nil
			},
		},
		renderCmd(c),
	)
	return cmd
}

func renderCmd(c *cli) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Apply the active theme to an HTML page",
		Long: `render sets data-theme on <html> and writes the generated palette rule
into <style id="dynamic-theme-styles">. Without --in an empty page is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := dom.NewHTMLDocument()
			if input != "" {
				var r io.Reader
				if input == "-" {
					r = cmd.InOrStdin()
				} else {
					f, err := os.Open(input)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				parsed, err := dom.ParseHTML(r)
				if err != nil {
					return err
				}
				doc = parsed
			}

			if _, err := c.open(cmd, openOptions{fetchTheme: true, document: doc}); err != nil {
				return err
			}

			if output == "" || output == "-" {
				return doc.Render(cmd.OutOrStdout())
			}
			var b strings.Builder
			if err := doc.Render(&b); err != nil {
				return err
			}
			return os.WriteFile(output, []byte(b.String()), 0o644)
		},
	}
	cmd.Flags().StringVar(&input, "in", "", "HTML file to theme (- for stdin)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "write the result here instead of stdout")
	return cmd
}
