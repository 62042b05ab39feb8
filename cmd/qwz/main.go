package main

import "github.com/mcoot/quizwordz/internal/cli"

func main() {
	cli.Execute()
}
