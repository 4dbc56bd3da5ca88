package main

import "github.com/ipeimoveis/crm-backend/cmd"

func main() {
	cmd.Execute()
}
