package progress

// PhaseSpec describes one scan phase and the progress band it occupies.
type PhaseSpec struct {
	Number   int
	Name     string
	Start    int // percentage at phase entry
	End      int // percentage when the phase finishes
	Substeps []string
}

// Phases are the fixed scan pipeline in execution order. Percentages are
// derived from how far into a phase's substeps the scan has advanced.
var Phases = []PhaseSpec{
	{1, "Validating URL and permissions", 0, 10, []string{"URL validation", "Permission check"}},
	{2, "Checking HTTP Security Headers", 10, 30, []string{"HSTS", "CSP", "X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy", "Permissions-Policy"}},
	{3, "Analyzing SSL/TLS Configuration", 30, 45, []string{"Certificate validation", "Protocol versions", "Cipher strength"}},
	{4, "Scanning DNS Security Records", 45, 60, []string{"SPF check", "DMARC check", "DKIM check", "DNSSEC check", "CAA check"}},
	{5, "Detecting Technology Stack", 60, 75, []string{"Web server detection", "Framework detection", "Library detection", "Security headers"}},
	{6, "Calculating Risk Score", 75, 90, []string{"Weighting findings", "OWASP mapping", "Grade calculation"}},
	{7, "Generating Comprehensive Report", 90, 100, []string{"Report assembly", "Recommendations", "Finalization"}},
}

// phase returns the spec for a 1-based phase number, or nil when out of range.
func phase(number int) *PhaseSpec {
	if number < 1 || number > len(Phases) {
		return nil
	}
	return &Phases[number-1]
}

// percentage maps a substep index inside a phase onto the phase's band.
func (p *PhaseSpec) percentage(substep int) int {
	if len(p.Substeps) == 0 {
		return p.Start
	}
	return p.Start + (p.End-p.Start)*substep/len(p.Substeps)
}
