package resolver

import "errors"

// SystemNameServerProvider is unsupported on Windows; Windows name-server
// discovery does not go through /etc/resolv.conf (see
// https://github.com/miekg/dns/issues/334). Callers on Windows must supply
// their own NameServerStreamProvider to NewBuilder.
func SystemNameServerProvider() (NameServerStreamProvider, error) {
	return nil, errors.New("SystemNameServerProvider: unsupported on windows")
}
