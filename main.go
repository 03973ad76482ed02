package main

import "github.com/boazomare1/school-managementKE-sub001/cmd"

func main() {
	cmd.Execute()
}
