package version

import "fmt"

const VERSION_MAJOR = 2
const VERSION_MINOR = 0
const VERSION_MICRO = 3

var version *Version

type Version struct {
	Major int
	Minor int
	Micro int
}

func (v *Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

func GetVersion() *Version {
	return version
}

func init() {
	version = &Version{
		Major: VERSION_MAJOR,
		Minor: VERSION_MINOR,
		Micro: VERSION_MICRO,
	}
}
