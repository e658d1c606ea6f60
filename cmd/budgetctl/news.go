package main

import (
	"fmt"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/workflow"
	"github.com/spf13/cobra"
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Fetch market news and turn it into budget alerts",
}

var newsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the latest articles from the news API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		s := config.GetSettings().News
		client, err := integrations.NewNewsClient(s.APIURL, s.APIKey)
		if err != nil {
			return err
		}
		saved, err := workflow.FetchNews(ctx, client, integrations.NewsQuery{
			Query:    s.Query,
			Country:  s.Country,
			Language: s.Language,
		})
		if err != nil {
			return err
		}
		fmt.Printf("saved %d article(s)\n", saved)
		return nil
	},
}

var newsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Send the latest articles to the decision service and store alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		settings := config.GetSettings()
		client, err := integrations.NewDecisionClient(settings.DecisionAPIURL)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = settings.News.DecisionLimit
		}
		alerts, err := workflow.ProcessNews(ctx, client, limit)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			fmt.Printf("alert %d [%s] %s\n", a.ID, a.DecisionKey, a.Decision)
		}
		fmt.Printf("created %d alert(s)\n", len(alerts))
		return nil
	},
}

func init() {
	newsProcessCmd.Flags().Int("limit", 0, "number of latest articles to evaluate (default NEWS_DECISION_LIMIT)")
	newsCmd.AddCommand(newsFetchCmd)
	newsCmd.AddCommand(newsProcessCmd)
}
