package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/suggest"
)

func newSuggestCmd(a *app) *cobra.Command {
	var board string
	var accept bool
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask the provider for three new tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.checkBoard(board); err != nil {
				return err
			}
			timeout, err := a.cfg.suggestTimeout()
			if err != nil {
				return err
			}
			provider := a.provider
			if provider == nil && a.cfg.Gemini.APIKey != "" {
				provider = suggest.NewGemini(a.cfg.Gemini.APIKey, a.cfg.Gemini.Model, a.cfg.Gemini.BaseURL)
			}
			gw := suggest.NewGateway(provider, nil, timeout, a.log)

			res, err := gw.Suggest(cmd.Context(), a.cfg.User, a.ws.Titles(board))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, title := range res.Suggestions {
				fmt.Fprintf(out, "%d. %s\n", i+1, title)
			}
			if !accept {
				return nil
			}
			created, err := a.ws.BulkInsertFromSuggestions(cmd.Context(), res.Suggestions, board)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Added %d tasks\n", len(created))
			return nil
		},
	}
	cmd.Flags().StringVarP(&board, "board", "b", "", "scope the context to a board and add accepted tasks to it")
	cmd.Flags().BoolVar(&accept, "accept", false, "add the suggestions as tasks")
	return cmd
}
