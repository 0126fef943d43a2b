// Command ragd serves the document question answering API.
//
//	@title						RAG Assistant API
//	@version					1.0
//	@description				Upload documents, ask questions over them and trace every answer back to its source.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-rag-backend/internal/cli"
)

func main() {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
