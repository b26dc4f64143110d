package main

import "github.com/yunqiqiliang/embedgate/cmd"

func main() {
	cmd.Execute()
}
