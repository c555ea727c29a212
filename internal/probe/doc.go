// Package probe implements the four passive posture probes.
//
// Architecture overview:
//
//   - Each probe type (HeaderProbe, TLSProbe, DNSProbe, TechProbe) reads one
//     protocol surface of the target and produces a typed report: security
//     header analysis, TLS/certificate state, DNS authentication records, or
//     a technology fingerprint.
//   - Every probe performs passive reads only. Standard GET requests, a
//     single TLS handshake, and public DNS queries. No payloads are sent.
//   - Reports carry their own letter grade and accumulated risk points so
//     the scoring layer can weight them without re-inspecting raw protocol
//     data. Probe failures surface through the Outcome wrappers in Bundle
//     rather than aborting the scan.
//   - ParseTarget normalizes user input (bare hosts, URLs with ports or
//     paths) into a TargetInfo consumed by every probe and by the safety
//     layer.
package probe
