// Command bestiary-crawler crawls a creature catalogue.
package main

import "github.com/JakeFAU/bestiary-crawler/cmd"

func main() {
	cmd.Execute()
}
