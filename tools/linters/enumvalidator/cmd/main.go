package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"notifications.app/engine/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
