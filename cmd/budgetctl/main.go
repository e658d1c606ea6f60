// budgetctl runs store maintenance and batch jobs outside the API server.
//
// Usage (from backend directory):
//
//	DB_DRIVER=mysql DB_USER=... DB_PASSWORD=... DB_HOST=... DB_NAME=... go run ./cmd/budgetctl migrate
//	DB_DRIVER=sqlite SQLITE_PATH=budget.db go run ./cmd/budgetctl import estimate.xlsx
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
