package main

import (
	"fmt"

	"github.com/hohbackend/budget_backend/models"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an API user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := connect(cmd)
		if err != nil {
			return err
		}
		input := &models.NewUser{Email: args[0]}
		input.FirstName, _ = cmd.Flags().GetString("first-name")
		input.LastName, _ = cmd.Flags().GetString("last-name")
		input.Password, _ = cmd.Flags().GetString("password")
		if phone, _ := cmd.Flags().GetString("phone"); phone != "" {
			input.Phone = &phone
		}
		user, err := models.CreateUser(ctx, input)
		if err != nil {
			return err
		}
		fmt.Printf("created user %d (%s)\n", user.ID, user.Email)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("first-name", "", "first name (required)")
	userCreateCmd.Flags().String("last-name", "", "last name")
	userCreateCmd.Flags().String("password", "", "password, at least 8 characters (required)")
	userCreateCmd.Flags().String("phone", "", "phone number in international format")
	_ = userCreateCmd.MarkFlagRequired("first-name")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
}
