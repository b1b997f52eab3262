package environment

type Env string

const (
	Dev        Env = "dev"
	Staging    Env = "staging"
	Production Env = "prod"
)

func (env Env) AnyOf(what ...Env) bool {
	for _, cur := range what {
		if env == cur {
			return true
		}
	}
	return false
}

// IsDev tells if unsigned test identities may be accepted.
func (env Env) IsDev() bool { return env == Dev || env == "" }
