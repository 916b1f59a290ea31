// Command ksrsigner runs the DNSSEC root-zone KSK signing ceremony:
// it verifies a ZSK operator's Key Signing Request against policy and
// the previously issued Signed Key Response, then signs a new SKR
// against an HSM-backed KSK inventory (spec §1).
package main

import "github.com/kirei/ksrsigner/cmd/ksrsigner/cmd"

func main() {
	cmd.Execute()
}
