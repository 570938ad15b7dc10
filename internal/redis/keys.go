package redisx

import "fmt"

const ns = "dogschool:v1"

func KeySchedule(scheduleID int64) string {
	return fmt.Sprintf("%s:schedule:%d", ns, scheduleID)
}

func KeyScheduleAvailability(scheduleID int64) string {
	return fmt.Sprintf("%s:schedule:%d:availability", ns, scheduleID)
}

func KeyClassSchedules(classID int64) string {
	return fmt.Sprintf("%s:class:%d:schedules", ns, classID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelSchedulesChanged() string {
	return ns + ":schedules:changed"
}
