package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gradebook/core/gradebook"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sqlx.DB
	gbRepo gradebook.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  addcourse -title TITLE -semester SEMESTER -year YEAR -instructor EMAIL - create a course")
	fmt.Println("  enroll -course COURSE_ID -email EMAIL -name NAME - enroll a student in a course")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addCourseCmd := flag.NewFlagSet("addcourse", flag.ExitOnError)
	addCourseTitle := addCourseCmd.String("title", "", "The course title.")
	addCourseSem := addCourseCmd.String("semester", "", "The semester (Fall, Winter, Spring or Summer).")
	addCourseYear := addCourseCmd.Int("year", 0, "The calendar year.")
	addCourseInstr := addCourseCmd.String("instructor", "", "The instructor's email.")

	enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
	enrollCourse := enrollCmd.String("course", "", "The course ID.")
	enrollEmail := enrollCmd.String("email", "", "The student's email.")
	enrollName := enrollCmd.String("name", "", "The student's full name.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addcourse":
		if err := addCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addCourseTitle == "" || *addCourseSem == "" || *addCourseYear == 0 || *addCourseInstr == "" {
			addCourseCmd.Usage()
			return errHelp
		}
		return cli.addCourse(*addCourseTitle, *addCourseSem, *addCourseYear, *addCourseInstr)
	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollCourse == "" || *enrollEmail == "" || *enrollName == "" {
			enrollCmd.Usage()
			return errHelp
		}
		return cli.enroll(*enrollCourse, *enrollEmail, *enrollName)
	default:
		cli.printUsage()
		return errHelp
	}
}
